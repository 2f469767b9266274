package appinfo

import "testing"

func TestEmbeddedManifest(t *testing.T) {
	if Info.Slug != "fridgechef" {
		t.Errorf("Slug = %q, want fridgechef", Info.Slug)
	}
	if Info.BinaryName != "fridgechef" {
		t.Errorf("BinaryName = %q, want fridgechef", Info.BinaryName)
	}
	if want := "fridgechef/" + Version(); UserAgent() != want {
		t.Errorf("UserAgent() = %q, want %q", UserAgent(), want)
	}
}

func TestParseManifestDefaults(t *testing.T) {
	meta, err := parseManifest([]byte("metadata:\n  slug: demo\n  version: 1.2.3\n"))
	if err != nil {
		t.Fatalf("parseManifest: %v", err)
	}
	if meta.Name != "demo" || meta.Description != "demo" || meta.BinaryName != "demo" {
		t.Errorf("defaults not applied: %+v", meta)
	}
}

func TestParseManifestErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"no version": "metadata:\n  slug: demo\n",
		"no slug":    "metadata:\n  version: 1.0.0\n",
		"bad yaml":   "metadata: [",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := parseManifest([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
