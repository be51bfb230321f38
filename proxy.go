package main

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

var (
	proxyMutex sync.RWMutex
	proxyCache = make(map[string]proxy.Dialer)
)

// httpConnectDialer implements proxy.Dialer for HTTP CONNECT proxies.
type httpConnectDialer struct {
	proxyURL *url.URL
	timeout  time.Duration
}

// Dial tunnels to addr through the HTTP proxy.
func (d *httpConnectDialer) Dial(network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.timeout, KeepAlive: 30 * time.Second}

	conn, err := dialer.Dial("tcp", d.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to HTTP proxy: %w", err)
	}

	request := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", addr, addr)
	if d.proxyURL.User != nil {
		password, _ := d.proxyURL.User.Password()
		auth := d.proxyURL.User.Username() + ":" + password
		request += "Proxy-Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte(auth)) + "\r\n"
	}
	request += "\r\n"

	if _, err = conn.Write([]byte(request)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to write CONNECT request: %w", err)
	}

	buf := make([]byte, 1024)
	conn.SetReadDeadline(time.Now().Add(d.timeout))
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	response := string(buf[:n])
	if !strings.Contains(response, " 200") {
		conn.Close()
		return nil, fmt.Errorf("proxy connection failed: %s", strings.TrimSpace(response))
	}

	return conn, nil
}

// GetProxyForAccount returns a proxy dialer for the given account, or
// nil when no proxy is configured. The [session] placeholder in the
// proxy URL expands to the account name plus its index, giving each
// account a sticky upstream session.
func GetProxyForAccount(settings *Settings, accountName string, index int) (proxy.Dialer, error) {
	proxyMutex.RLock()
	if dialer, ok := proxyCache[accountName]; ok {
		proxyMutex.RUnlock()
		return dialer, nil
	}
	proxyMutex.RUnlock()

	if settings.ProxyURL == "" {
		return nil, nil
	}

	session := fmt.Sprintf("%s%d", accountName, index)
	proxyStr := strings.ReplaceAll(settings.ProxyURL, "[session]", session)

	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	var dialer proxy.Dialer
	switch proxyURL.Scheme {
	case "socks5":
		var auth *proxy.Auth
		if proxyURL.User != nil {
			auth = &proxy.Auth{User: proxyURL.User.Username()}
			if password, ok := proxyURL.User.Password(); ok {
				auth.Password = password
			}
		}

		dialer, err = proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
	case "http", "https":
		dialer = &httpConnectDialer{proxyURL: proxyURL, timeout: 30 * time.Second}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", proxyURL.Scheme)
	}

	proxyMutex.Lock()
	proxyCache[accountName] = dialer
	proxyMutex.Unlock()

	return dialer, nil
}

// ClearProxyCache drops all cached proxy dialers.
func ClearProxyCache() {
	proxyMutex.Lock()
	proxyCache = make(map[string]proxy.Dialer)
	proxyMutex.Unlock()
}

// ClearProxyForAccount drops one account's cached dialer so a
// re-registered bot gets a fresh upstream session.
func ClearProxyForAccount(accountName string) {
	proxyMutex.Lock()
	delete(proxyCache, accountName)
	proxyMutex.Unlock()
}
