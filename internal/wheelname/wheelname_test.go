package wheelname_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/wheelport/wheelport/internal/wheelname"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     wheelname.Filename
	}{
		{
			name:     "simple",
			filename: "tqdm-4.62.3-py2.py3-none-any.whl",
			want: wheelname.Filename{
				Distribution: "tqdm",
				Version:      "4.62.3",
				PyTags:       []string{"py2", "py3"},
				ABITags:      []string{"none"},
				PlatTags:     []string{"any"},
			},
		},
		{
			name:     "build tag",
			filename: "distribution-1.0-1-py27-none-any.whl",
			want: wheelname.Filename{
				Distribution: "distribution",
				Version:      "1.0",
				Build:        &wheelname.BuildTag{Num: 1},
				PyTags:       []string{"py27"},
				ABITags:      []string{"none"},
				PlatTags:     []string{"any"},
			},
		},
		{
			name:     "build tag with suffix",
			filename: "distribution-1.0-1b-py27-none-any.whl",
			want: wheelname.Filename{
				Distribution: "distribution",
				Version:      "1.0",
				Build:        &wheelname.BuildTag{Num: 1, Tag: "b"},
				PyTags:       []string{"py27"},
				ABITags:      []string{"none"},
				PlatTags:     []string{"any"},
			},
		},
		{
			name:     "normalizes distribution",
			filename: "My_Cool.Package-1.0-py3-none-any.whl",
			want: wheelname.Filename{
				Distribution: "my-cool-package",
				Version:      "1.0",
				PyTags:       []string{"py3"},
				ABITags:      []string{"none"},
				PlatTags:     []string{"any"},
			},
		},
		{
			name:     "compound platform tags",
			filename: "cryptography-3.4-cp39-cp39-manylinux_2_17_x86_64.manylinux2014_x86_64.whl",
			want: wheelname.Filename{
				Distribution: "cryptography",
				Version:      "3.4",
				PyTags:       []string{"cp39"},
				ABITags:      []string{"cp39"},
				PlatTags:     []string{"manylinux_2_17_x86_64", "manylinux2014_x86_64"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := wheelname.Parse(tt.filename)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.filename, err)
			}

			if got.Distribution != tt.want.Distribution {
				t.Errorf("Distribution = %q, want %q", got.Distribution, tt.want.Distribution)
			}

			if got.Version != tt.want.Version {
				t.Errorf("Version = %q, want %q", got.Version, tt.want.Version)
			}

			if (got.Build == nil) != (tt.want.Build == nil) {
				t.Fatalf("Build = %v, want %v", got.Build, tt.want.Build)
			}

			if got.Build != nil && *got.Build != *tt.want.Build {
				t.Errorf("Build = %+v, want %+v", *got.Build, *tt.want.Build)
			}

			if strings.Join(got.PyTags, ",") != strings.Join(tt.want.PyTags, ",") {
				t.Errorf("PyTags = %v, want %v", got.PyTags, tt.want.PyTags)
			}

			if strings.Join(got.ABITags, ",") != strings.Join(tt.want.ABITags, ",") {
				t.Errorf("ABITags = %v, want %v", got.ABITags, tt.want.ABITags)
			}

			if strings.Join(got.PlatTags, ",") != strings.Join(tt.want.PlatTags, ",") {
				t.Errorf("PlatTags = %v, want %v", got.PlatTags, tt.want.PlatTags)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, filename := range []string{
		"not-a-wheel.tar.gz",
		"onlyfourparts-py3-none-any.whl",
		"",
	} {
		if _, err := wheelname.Parse(filename); !errors.Is(err, wheelname.ErrInvalidWheelName) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidWheelName", filename, err)
		}
	}
}

// TestRoundTrip is property 1 from spec.md section 8: for every valid
// filename, parse then reconstruct yields the original after normalization
// of the distribution component.
func TestRoundTrip(t *testing.T) {
	filenames := []string{
		"tqdm-4.62.3-py2.py3-none-any.whl",
		"distribution-1.0-1-py27-none-any.whl",
		"distribution-1.0-1b-py27-none-any.whl",
		"plotly-5.5.0-py2.py3-none-any.whl",
		"numpy-1.21.0-cp39-cp39-manylinux_2_17_x86_64.whl",
	}

	for _, filename := range filenames {
		fn, err := wheelname.Parse(filename)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", filename, err)
		}

		if got := fn.String(); got != filename {
			t.Errorf("round trip %q -> %q, want %q", filename, got, filename)
		}
	}
}

func TestCheckCompatible(t *testing.T) {
	fn, err := wheelname.Parse("tqdm-4.62.3-py2.py3-none-any.whl")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	env := wheelname.CompatTags{
		Python:   []string{"cp38", "py3"},
		ABI:      []string{"none", "cp38"},
		Platform: []string{"any", "linux_x86_64"},
	}

	if err := fn.CheckCompatible(env); err != nil {
		t.Errorf("CheckCompatible() error = %v, want nil", err)
	}

	incompatible := wheelname.CompatTags{
		Python:   []string{"cp27"},
		ABI:      []string{"none"},
		Platform: []string{"any"},
	}

	if err := fn.CheckCompatible(incompatible); !errors.Is(err, wheelname.ErrIncompatibleTags) {
		t.Errorf("CheckCompatible() error = %v, want ErrIncompatibleTags", err)
	}
}

func TestValidateVersion(t *testing.T) {
	fn, err := wheelname.Parse("pkg-1.0.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if err := fn.ValidateVersion(); err != nil {
		t.Errorf("ValidateVersion() error = %v, want nil", err)
	}
}
