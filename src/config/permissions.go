package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
)

// PermissionChecker checks if tool operations are allowed based on configuration
type PermissionChecker struct {
	config *ToolsConfig
}

// NewPermissionChecker creates a new permission checker
func NewPermissionChecker(config *ToolsConfig) *PermissionChecker {
	return &PermissionChecker{
		config: config,
	}
}

// PermissionResult represents the result of a permission check
type PermissionResult struct {
	Allowed bool
	Reason  string
}

// Err returns nil when allowed and a descriptive error otherwise.
func (r PermissionResult) Err() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("permission denied: %s", r.Reason)
}

// CheckFileReadPermission checks if reading a file is allowed. Relative paths
// are resolved against the configured root.
func (p *PermissionChecker) CheckFileReadPermission(path string) PermissionResult {
	absPath, err := p.ResolvePath(path)
	if err != nil {
		return PermissionResult{
			Allowed: false,
			Reason:  fmt.Sprintf("Invalid path: %v", err),
		}
	}

	// Check deny paths first
	for _, denyPath := range p.config.FileSystem.DenyPaths {
		if isPathUnder(absPath, denyPath) {
			return PermissionResult{
				Allowed: false,
				Reason:  fmt.Sprintf("Path is in denied directory: %s", denyPath),
			}
		}
	}

	// Check file extension
	ext := strings.ToLower(filepath.Ext(absPath))
	if slices.Contains(p.config.FileSystem.DeniedExtensions, ext) {
		return PermissionResult{
			Allowed: false,
			Reason:  fmt.Sprintf("File extension %s is denied", ext),
		}
	}

	if root := p.config.FileSystem.Root; root != "" && !isPathUnder(absPath, root) {
		return PermissionResult{
			Allowed: false,
			Reason:  "Path is outside the tool root",
		}
	}

	return PermissionResult{Allowed: true}
}

// ResolvePath makes path absolute, joining relative paths onto the tool root.
func (p *PermissionChecker) ResolvePath(path string) (string, error) {
	if !filepath.IsAbs(path) && p.config.FileSystem.Root != "" {
		path = filepath.Join(p.config.FileSystem.Root, path)
	}
	return filepath.Abs(path)
}

// CheckNetworkPermission checks if a network request is allowed
func (p *PermissionChecker) CheckNetworkPermission(rawURL string) PermissionResult {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return PermissionResult{
			Allowed: false,
			Reason:  fmt.Sprintf("Invalid URL: %s", rawURL),
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return PermissionResult{
			Allowed: false,
			Reason:  fmt.Sprintf("Scheme %s is not allowed", u.Scheme),
		}
	}
	domain := strings.ToLower(u.Hostname())

	// Check localhost
	if isLocalhost(domain) && !p.config.Network.AllowLocalhost {
		return PermissionResult{
			Allowed: false,
			Reason:  "Localhost access is not allowed",
		}
	}

	// Check private networks
	if isPrivateNetwork(domain) && !p.config.Network.AllowPrivateNetworks {
		return PermissionResult{
			Allowed: false,
			Reason:  "Private network access is not allowed",
		}
	}

	// Check denied domains
	for _, denied := range p.config.Network.DeniedDomains {
		if matchDomain(domain, denied) {
			return PermissionResult{
				Allowed: false,
				Reason:  fmt.Sprintf("Domain is denied: %s", denied),
			}
		}
	}

	// Check allowed domains if specified
	if len(p.config.Network.AllowedDomains) > 0 {
		allowed := false
		for _, allowedDomain := range p.config.Network.AllowedDomains {
			if matchDomain(domain, allowedDomain) {
				allowed = true
				break
			}
		}
		if !allowed {
			return PermissionResult{
				Allowed: false,
				Reason:  "Domain not in allowed list",
			}
		}
	}

	return PermissionResult{Allowed: true}
}

// isPathUnder checks if a path is under a parent directory
func isPathUnder(path, parent string) bool {
	absParent, err := filepath.Abs(parent)
	if err != nil {
		return false
	}

	relPath, err := filepath.Rel(absParent, path)
	if err != nil {
		return false
	}

	return relPath != ".." && !strings.HasPrefix(relPath, ".."+string(filepath.Separator))
}

// isLocalhost checks if domain is localhost
func isLocalhost(domain string) bool {
	if domain == "localhost" || strings.HasSuffix(domain, ".localhost") || strings.HasSuffix(domain, ".local") {
		return true
	}
	ip := net.ParseIP(domain)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

// isPrivateNetwork checks if domain is an address in a private range
func isPrivateNetwork(domain string) bool {
	ip := net.ParseIP(domain)
	return ip != nil && (ip.IsPrivate() || ip.IsLinkLocalUnicast())
}

// matchDomain matches a domain against a pattern
func matchDomain(domain, pattern string) bool {
	pattern = strings.ToLower(pattern)
	// Handle wildcard subdomains
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return domain == suffix || strings.HasSuffix(domain, "."+suffix)
	}

	return domain == pattern
}
