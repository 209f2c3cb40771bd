package imagepulse

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation patterns for docker image reference components
var (
	imageNamePattern  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-/:@]*$`)
	repositoryPattern = regexp.MustCompile(`^[a-z0-9]+([._-][a-z0-9]+)*(/[a-z0-9]+([._-][a-z0-9]+)*)*$`)
	tagPattern        = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._-]{0,127}$`)
)

// ValidateImageName validates and normalizes a docker image reference
// from user input. It returns the trimmed reference or an error naming
// what is wrong with it.
func ValidateImageName(image string) (string, error) {
	image = strings.TrimSpace(image)

	if image == "" {
		return "", fmt.Errorf("image name cannot be empty")
	}

	if len(image) > 256 {
		return "", fmt.Errorf("image name too long (max 256 characters)")
	}

	if strings.Contains(image, "..") {
		return "", fmt.Errorf("invalid characters in image name")
	}

	if !imageNamePattern.MatchString(image) {
		return "", fmt.Errorf("image name contains invalid characters")
	}

	repository, tag := splitRepositoryTag(image)
	// Drop an explicit registry host before checking the repository,
	// so ports and dotted hostnames don't trip the pattern.
	if i := strings.Index(repository, "/"); i != -1 {
		first := repository[:i]
		if strings.Contains(first, ".") || strings.Contains(first, ":") || first == "localhost" {
			repository = repository[i+1:]
		}
	}
	if !repositoryPattern.MatchString(strings.ToLower(repository)) {
		return "", fmt.Errorf("invalid repository name: %s", repository)
	}
	if tag != "" && !strings.HasPrefix(tag, "sha256:") && !tagPattern.MatchString(tag) {
		return "", fmt.Errorf("invalid tag: %s", tag)
	}

	return image, nil
}

// splitRepositoryTag splits an image reference into repository and tag.
// The tag separator is the last colon after the last slash, so registry
// ports ("localhost:5000/app") are not mistaken for tags.
func splitRepositoryTag(image string) (string, string) {
	if at := strings.LastIndex(image, "@"); at != -1 {
		return image[:at], image[at+1:]
	}
	slash := strings.LastIndex(image, "/")
	colon := strings.LastIndex(image, ":")
	if colon > slash {
		return image[:colon], image[colon+1:]
	}
	return image, ""
}

// ParseRegistry extracts the registry host from an image reference. If
// the first path component does not look like a hostname, the image
// lives on docker.io.
func ParseRegistry(image string) string {
	first := strings.Split(image, "/")[0]
	if strings.Contains(first, ".") || strings.Contains(first, ":") || first == "localhost" {
		return first
	}
	return "docker.io"
}
