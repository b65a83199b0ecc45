package docker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewClientTLSMissingCA(t *testing.T) {
	_, err := NewClient("tcp://docker.internal:2376", &TLSConfig{
		CACert:     filepath.Join(t.TempDir(), "absent.pem"),
		ClientCert: "client.pem",
		ClientKey:  "client-key.pem",
	})
	if err == nil || !strings.Contains(err.Error(), "configure Docker TLS") {
		t.Errorf("err = %v, want TLS configuration failure", err)
	}
}

func TestNewClientTLSMalformedCA(t *testing.T) {
	ca := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(ca, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewClient("tcp://docker.internal:2376", &TLSConfig{
		CACert:     ca,
		ClientCert: "client.pem",
		ClientKey:  "client-key.pem",
	})
	if err == nil {
		t.Error("NewClient accepted a malformed CA certificate")
	}
}

func TestNewClientUnixSocketSkipsTLS(t *testing.T) {
	// TLS paths only apply to tcp endpoints; a unix socket must not try
	// to read them.
	c, err := NewClient("/var/run/docker.sock", &TLSConfig{
		CACert:     "absent.pem",
		ClientCert: "absent.pem",
		ClientKey:  "absent.pem",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.Close()
}
