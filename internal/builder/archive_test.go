package builder

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, members map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeTarGz(t *testing.T, members map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range members {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractZip(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"Dockerfile":    "FROM scratch\n",
		"metadata.json": "{}",
		"src/app.py":    "print('hi')\n",
	})
	dest := t.TempDir()
	if err := extract(archive, dest); err != nil {
		t.Fatalf("extract: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "src", "app.py"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "print('hi')\n" {
		t.Errorf("content = %q", got)
	}
}

func TestExtractTarGz(t *testing.T) {
	archive := writeTarGz(t, map[string]string{
		"Dockerfile":    "FROM scratch\n",
		"metadata.json": "{}",
	})
	dest := t.TempDir()
	if err := extract(archive, dest); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "Dockerfile")); err != nil {
		t.Errorf("Dockerfile not extracted: %v", err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"../evil.txt": "gotcha",
	})
	dest := t.TempDir()
	if err := extract(archive, dest); err == nil {
		t.Fatal("extract accepted a traversal member")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt")); err == nil {
		t.Error("traversal member was written outside the extraction root")
	}
}

func TestExtractRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.rar")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := extract(path, t.TempDir()); err == nil {
		t.Error("extract accepted an unsupported format")
	}
}

func TestPackContextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatal(err)
	}

	buf, err := packContext(dir)
	if err != nil {
		t.Fatalf("packContext: %v", err)
	}

	gz, err := gzip.NewReader(buf)
	if err != nil {
		t.Fatalf("context is not gzipped: %v", err)
	}
	tr := tar.NewReader(gz)
	names := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names[hdr.Name] = true
	}
	for _, want := range []string{"Dockerfile", "src/main.go"} {
		if !names[want] {
			t.Errorf("build context missing %s (got %v)", want, names)
		}
	}
}
