package envdetect_test

import (
	"context"
	"testing"

	"github.com/wheelport/wheelport/internal/envdetect"
	"github.com/wheelport/wheelport/internal/envspec"
)

func fakeRunner(output string) envdetect.CommandRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(output), nil
	}
}

func TestDetect(t *testing.T) {
	output := "/v/lib/python3.8/site-packages\n" +
		"/v/lib/python3.8/site-packages\n" +
		"/v/bin\n" +
		"/v/include\n" +
		"/v\n" +
		"linux-x86_64\n" +
		"3.8\n" +
		"cpython\n" +
		"/v/bin/python3.8\n"

	d := envdetect.New(
		envdetect.WithCommandRunner(fakeRunner(output)),
		envdetect.WithEnvLookup(func(k string) string {
			if k == "VIRTUAL_ENV" {
				return "/v"
			}
			return ""
		}),
	)

	spec, err := d.Detect(context.Background(), "/v/bin/python3.8")
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}

	if spec.PythonMajor != 3 || spec.PythonMinor != 8 {
		t.Errorf("PythonMajor/Minor = %d.%d, want 3.8", spec.PythonMajor, spec.PythonMinor)
	}

	if spec.VenvRoot != "/v" {
		t.Errorf("VenvRoot = %q, want /v", spec.VenvRoot)
	}

	if spec.SysPaths[envspec.Scripts] != "/v/bin" {
		t.Errorf("Scripts path = %q, want /v/bin", spec.SysPaths[envspec.Scripts])
	}

	if len(spec.CompatTags.Python) == 0 {
		t.Error("CompatTags.Python is empty")
	}
}

func TestDetectBadOutput(t *testing.T) {
	d := envdetect.New(envdetect.WithCommandRunner(fakeRunner("too\nshort\n")))

	if _, err := d.Detect(context.Background(), "/usr/bin/python3"); err == nil {
		t.Error("Detect() error = nil, want error for malformed probe output")
	}
}
