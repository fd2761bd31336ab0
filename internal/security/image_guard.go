package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/hitoshi/courseman/internal/model"
)

// ImageChecker はコース画像URLの検証機能のインターフェース。
type ImageChecker interface {
	// CheckImage はURLが安全で、画像を指していることを検証する。
	// 失敗は *model.ValidationError（Field: imageUrl）で返す。
	CheckImage(ctx context.Context, rawURL string) error
}

// allowedSchemes は画像URLに許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は画像URLとして拒否するネットワーク範囲。
// safeurlはDNS解決後のIPアドレスも検証するため、ここでは静的チェックのみを行う。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータIPを含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		out = append(out, network)
	}
	return out
}

// ImageGuard はImageCheckerの実装。
// probeが有効な場合はSSRF防止付きクライアントでHEADリクエストを送り、
// Content-Typeが image/* であることを確認する。
type ImageGuard struct {
	client *http.Client
	probe  bool
}

// NewImageGuard はImageGuardを生成する。
// probe=false の場合はURLの静的な検証のみを行う。
func NewImageGuard(timeout time.Duration, probe bool) *ImageGuard {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return &ImageGuard{
		client: safeurl.Client(config).Client,
		probe:  probe,
	}
}

// CheckImage はURLを検証する。空文字列は画像なしとして許可する。
func (g *ImageGuard) CheckImage(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return nil
	}
	if err := ValidateImageURL(rawURL); err != nil {
		return &model.ValidationError{Field: model.FieldImageURL, Reason: err.Error()}
	}
	if !g.probe {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return &model.ValidationError{Field: model.FieldImageURL, Reason: err.Error()}
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return &model.ValidationError{Field: model.FieldImageURL, Reason: fmt.Sprintf("unreachable: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &model.ValidationError{Field: model.FieldImageURL, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(strings.ToLower(ct), "image/") {
		return &model.ValidationError{Field: model.FieldImageURL, Reason: fmt.Sprintf("not an image: %q", ct)}
	}
	return nil
}

// ValidateImageURL はDNS解決を伴わない静的な検証を行う。
func ValidateImageURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host")
	}
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip)
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

var _ ImageChecker = (*ImageGuard)(nil)
