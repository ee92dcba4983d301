//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fyrsmithlabs/docflow/internal/logging"
	"go.uber.org/zap"
)

// ONNXRuntimeVersion is the runtime release fetched when none is installed.
const ONNXRuntimeVersion = "1.23.0"

const onnxReleaseURL = "https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz"

// ErrUnsupportedPlatform indicates no ONNX runtime build exists for this OS/arch.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

var onnxArchives = map[string]string{
	"linux/amd64":  "linux-x64",
	"linux/arm64":  "linux-aarch64",
	"darwin/amd64": "osx-x86_64",
	"darwin/arm64": "osx-arm64",
}

func onnxArchive(goos, goarch string) (string, error) {
	if a, ok := onnxArchives[goos+"/"+goarch]; ok {
		return a, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
}

func onnxLibraryName(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

func onnxInstallDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "docflow", "lib")
	}
	return filepath.Join(".", "lib")
}

// ONNXLibraryPath returns ONNX_PATH if set, else the managed install, else "".
func ONNXLibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	managed := filepath.Join(onnxInstallDir(), onnxLibraryName(runtime.GOOS))
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// EnsureONNXRuntime makes the runtime library available to fastembed,
// downloading it into the user cache dir on first use. fastembed reads the
// location from ONNX_PATH.
func EnsureONNXRuntime(ctx context.Context, logger *logging.Logger) (string, error) {
	path := ONNXLibraryPath()
	if path == "" {
		logger.Info(ctx, "onnx runtime not found, downloading",
			zap.String("version", ONNXRuntimeVersion),
			zap.String("platform", runtime.GOOS+"/"+runtime.GOARCH),
		)
		if err := downloadONNXRuntime(ctx, ONNXRuntimeVersion, onnxInstallDir()); err != nil {
			return "", fmt.Errorf("installing onnx runtime (set ONNX_PATH to skip): %w", err)
		}
		if path = ONNXLibraryPath(); path == "" {
			return "", errors.New("onnx runtime download completed but library not found")
		}
	}
	if err := os.Setenv("ONNX_PATH", path); err != nil {
		return "", fmt.Errorf("setting ONNX_PATH: %w", err)
	}
	return path, nil
}

func downloadONNXRuntime(ctx context.Context, version, destDir string) error {
	platform, err := onnxArchive(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(onnxReleaseURL, version, platform, version), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	prefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version)
	return extractLibs(resp.Body, destDir, prefix, onnxLibraryName(runtime.GOOS))
}

// extractLibs copies the lib/ entries of the release tarball into destDir,
// keeping symlinks. It fails if libName was not among them.
func extractLibs(r io.Reader, destDir, prefix, libName string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	found := false
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, prefix) || hdr.Typeflag == tar.TypeDir {
			continue
		}
		base := filepath.Base(name)
		dest := filepath.Join(destDir, base)

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				continue
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return err
			}
		default:
			continue
		}
		if base == libName || strings.HasPrefix(base, libName+".") {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(dest), err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(dest), err)
	}
	return f.Close()
}
