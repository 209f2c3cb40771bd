package imagepulse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateImageName_Valid(t *testing.T) {
	valid := []string{
		"nginx",
		"nginx:latest",
		"library/nginx:1.25",
		"gcr.io/my-project/my-image:v1.0",
		"localhost:5000/myimage:test",
		"ghcr.io/org/app:2024-01-01",
		"nginx@sha256:0123456789abcdef",
	}
	for _, image := range valid {
		got, err := ValidateImageName(image)
		assert.NoError(t, err, "image %q should be valid", image)
		assert.Equal(t, image, got)
	}
}

func TestValidateImageName_Trims(t *testing.T) {
	got, err := ValidateImageName("  nginx:latest ")
	assert.NoError(t, err)
	assert.Equal(t, "nginx:latest", got)
}

func TestValidateImageName_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"   ",
		"../etc/passwd",
		"nginx:la..test",
		"bad image",
		"-leading-dash",
		"nginx:" + strings.Repeat("t", 200),
		strings.Repeat("a", 300),
		"nginx:tag!",
	}
	for _, image := range invalid {
		_, err := ValidateImageName(image)
		assert.Error(t, err, "image %q should be rejected", image)
	}
}

func TestParseRegistry(t *testing.T) {
	tests := []struct {
		image    string
		registry string
	}{
		{"nginx:latest", "docker.io"},
		{"library/nginx", "docker.io"},
		{"gcr.io/project/app:v1", "gcr.io"},
		{"localhost:5000/app", "localhost:5000"},
		{"localhost/app", "localhost"},
		{"registry.example.com/team/app", "registry.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.registry, ParseRegistry(tt.image), "image %q", tt.image)
	}
}

func TestSplitRepositoryTag(t *testing.T) {
	tests := []struct {
		image, repo, tag string
	}{
		{"nginx", "nginx", ""},
		{"nginx:latest", "nginx", "latest"},
		{"localhost:5000/app", "localhost:5000/app", ""},
		{"localhost:5000/app:v2", "localhost:5000/app", "v2"},
		{"nginx@sha256:abc", "nginx", "sha256:abc"},
	}
	for _, tt := range tests {
		repo, tag := splitRepositoryTag(tt.image)
		assert.Equal(t, tt.repo, repo, "repo of %q", tt.image)
		assert.Equal(t, tt.tag, tag, "tag of %q", tt.image)
	}
}
