package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/log"
)

func init() {
	log.SetLevel(log.LevelMute)
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	var err error
	if strings.HasSuffix(name, ".png") {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type viewJSON struct {
	Fields []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"fields"`
}

func view(t *testing.T, path string) map[string]string {
	t.Helper()
	var out bytes.Buffer
	if code := run("view", []string{"-json", path}, &out); code != 0 {
		t.Fatalf("view exit %d", code)
	}
	var v viewJSON
	if err := json.Unmarshal(out.Bytes(), &v); err != nil {
		t.Fatalf("view output %q: %v", out.String(), err)
	}
	got := map[string]string{}
	for _, f := range v.Fields {
		got[f.Key] = f.Value
	}
	return got
}

func TestModifyAndView(t *testing.T) {
	paths := []string{fixture(t, "a.jpg"), fixture(t, "b.png")}
	table := filepath.Join(t.TempDir(), "table.yaml")
	err := os.WriteFile(table, []byte(`
- family: iptc
  key: Iptc.Application2.Keywords
  values: [sea, sky]
  type: array
- family: xmp
  key: Xmp.dc.subject
  values: [sea]
  type: array
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	args := append([]string{"-set", "Exif.Image.Make=Acme", "-set", "Exif.Image.Artist=Ann", "-table", table}, paths...)
	var out bytes.Buffer
	if code := run("modify", args, &out); code != 0 {
		t.Fatalf("modify exit %d: %s", code, out.String())
	}
	for _, p := range paths {
		got := view(t, p)
		want := map[string]string{
			"Exif.Image.Make":            "Acme",
			"Exif.Image.Artist":          "Ann",
			"Iptc.Application2.Keywords": "sky",
			"Xmp.dc.subject":             "sea",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", filepath.Base(p), diff)
		}
	}

	if code := run("modify", []string{"-delete", "Exif.Image.Artist", paths[0]}, &out); code != 0 {
		t.Fatalf("delete exit %d", code)
	}
	if _, ok := view(t, paths[0])["Exif.Image.Artist"]; ok {
		t.Error("Artist survived -delete")
	}
}

func TestModifyFamilyFlag(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		code   int
		wantOK map[string]string
	}{
		{
			name:   "matching family",
			args:   []string{"-family", "exif", "-set", "Exif.Image.Make=Acme"},
			wantOK: map[string]string{"Exif.Image.Make": "Acme"},
		},
		{
			name: "key of another family",
			args: []string{"-family", "exif", "-set", "Exif.Image.Make=Acme", "-set", "Xmp.dc.title=Sea"},
			code: 1,
		},
		{
			name: "family without keys",
			args: []string{"-family", "comment", "-set", "Exif.Image.Make=Acme"},
			code: 1,
		},
		{
			name: "unknown family",
			args: []string{"-family", "sidecar", "-set", "Exif.Image.Make=Acme"},
			code: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := fixture(t, "f.jpg")
			var out bytes.Buffer
			if code := run("modify", append(tt.args, path), &out); code != tt.code {
				t.Fatalf("modify exit %d, want %d", code, tt.code)
			}
			want := tt.wantOK
			if want == nil {
				want = map[string]string{}
			}
			if diff := cmp.Diff(want, view(t, path)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestRepeatedPathIsProcessedOnce(t *testing.T) {
	path := fixture(t, "a.jpg")
	other := filepath.Join(filepath.Dir(path), ".", "a.jpg")
	var out bytes.Buffer
	args := []string{"-set", "Exif.Image.Make=Acme", path, other, path}
	if code := run("modify", args, &out); code != 0 {
		t.Fatalf("modify exit %d", code)
	}
	if n := strings.Count(out.String(), "families written"); n != 1 {
		t.Errorf("file written %d times:\n%s", n, out.String())
	}
	if got := view(t, path)["Exif.Image.Make"]; got != "Acme" {
		t.Errorf("Make = %q", got)
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	if code := run("version", nil, &out); code != 0 {
		t.Fatalf("version exit %d", code)
	}
	if diff := cmp.Diff("surgery "+core.Version+"\n", out.String()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestClearAndComment(t *testing.T) {
	path := fixture(t, "c.jpg")
	var out bytes.Buffer
	if code := run("comment", []string{"-set", "hello", path}, &out); code != 0 {
		t.Fatalf("comment exit %d", code)
	}
	out.Reset()
	if code := run("comment", []string{path}, &out); code != 0 || out.String() != "hello\n" {
		t.Errorf("comment read = %q, exit %d", out.String(), code)
	}
	if code := run("clear", []string{"-family", "comment", path}, &out); code != 0 {
		t.Fatalf("clear exit %d", code)
	}
	if got := view(t, path); len(got) != 0 {
		t.Errorf("fields after clear = %v", got)
	}
}

func TestBlobCommands(t *testing.T) {
	path := fixture(t, "d.jpg")
	dir := t.TempDir()
	profile := filepath.Join(dir, "in.icc")
	if err := os.WriteFile(profile, bytes.Repeat([]byte{7}, 1000), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if code := run("icc", []string{"-import", profile, path}, &out); code != 0 {
		t.Fatalf("icc import exit %d", code)
	}
	exported := filepath.Join(dir, "out.icc")
	if code := run("icc", []string{"-export", exported, path}, &out); code != 0 {
		t.Fatalf("icc export exit %d", code)
	}
	a, _ := os.ReadFile(profile)
	b, _ := os.ReadFile(exported)
	if !bytes.Equal(a, b) {
		t.Error("exported profile differs from imported one")
	}
	if code := run("icc", []string{path, path}, &out); code != 2 {
		t.Errorf("icc with two files exit %d, want 2", code)
	}
}

func TestAccessAndMime(t *testing.T) {
	path := fixture(t, "e.png")
	var out bytes.Buffer
	if code := run("access", []string{"-json", path}, &out); code != 0 {
		t.Fatalf("access exit %d", code)
	}
	var got struct {
		Access map[string]string `json:"access"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Access["iptc"] != core.AccessReadWrite.String() {
		t.Errorf("png iptc access = %q", got.Access["iptc"])
	}
	out.Reset()
	if code := run("mime", []string{path}, &out); code != 0 || !strings.HasSuffix(out.String(), "image/png\n") {
		t.Errorf("mime = %q, exit %d", out.String(), code)
	}
}

func TestVerify(t *testing.T) {
	path := fixture(t, "f.jpg")
	var out bytes.Buffer
	if code := run("modify", []string{"-set", "Exif.Image.Make=Acme", "-set", "Exif.Photo.ExposureTime=1/250", path}, &out); code != 0 {
		t.Fatalf("modify exit %d", code)
	}
	out.Reset()
	if code := run("verify", []string{path}, &out); code != 0 {
		t.Errorf("verify exit %d: %s", code, out.String())
	}
}

func TestConfigAndTable(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "surgery.yaml")
	os.WriteFile(cfgPath, []byte("encoding: latin1\nlog_level: 4\njson: true\nworkers: 0\n"), 0o644)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	level := 4
	want := Config{Encoding: "latin1", LogLevel: &level, JSON: true, Workers: 1}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}

	tablePath := filepath.Join(dir, "bad.yaml")
	os.WriteFile(tablePath, []byte("- family: sidecar\n  key: X\n"), 0o644)
	if _, err := loadTable(tablePath); err == nil {
		t.Error("unknown family accepted")
	}
}
