package daemon

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ResolveWSAddr turns a configured WebSocket address into a concrete one.
// A bare port gets "localhost"; port "auto" or "0" is replaced by a free
// port picked now.
func ResolveWSAddr(addr string) (string, error) {
	if !strings.Contains(addr, ":") {
		addr = "localhost:" + addr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid WebSocket address %q: %w", addr, err)
	}
	if host == "" {
		host = "localhost"
	}
	if port != "auto" && port != "0" {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return "", fmt.Errorf("invalid WebSocket port %q", port)
		}
		return net.JoinHostPort(host, port), nil
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return "", fmt.Errorf("failed to find free port for WebSocket: %w", err)
	}
	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	_ = ln.Close()
	if !ok {
		return "", fmt.Errorf("failed to get TCP address from listener")
	}
	return net.JoinHostPort(host, strconv.Itoa(tcpAddr.Port)), nil
}

// WritePortFile writes port atomically (temp file, then rename).
func WritePortFile(path string, port int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create port file directory: %w", err)
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, []byte(fmt.Sprintf("%d\n", port)), 0600); err != nil {
		return fmt.Errorf("failed to write port file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to finalize port file: %w", err)
	}
	return nil
}

// ReadPortFile reads a port written by WritePortFile.
func ReadPortFile(path string) (int, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304 - path from internal var directory
	if err != nil {
		return 0, err
	}
	portStr := strings.TrimSpace(string(content))
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port in file: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port out of valid range: %d", port)
	}
	return port, nil
}

// RemovePortFile removes the port file. A missing file is not an error.
func RemovePortFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove port file: %w", err)
	}
	return nil
}
