package stateparse

import (
	"regexp"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

var (
	dockerPullPushPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Pulling from`),
		regexp.MustCompile(`Pushing to`),
		regexp.MustCompile(`\d+\.\d+[kMG]B/\d+\.\d+[kMG]B`),
		regexp.MustCompile(`\bDownloading\b`),
		regexp.MustCompile(`\bExtracting\b`),
		regexp.MustCompile(`\bWaiting\b`),
	}
	dockerBuildPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^Step \d+/\d+`),
		regexp.MustCompile(`--->`),
		regexp.MustCompile(`\bBuilding\b`),
		regexp.MustCompile(`^#\d+ `),
	}
	dockerComposePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bCreating\b`),
		regexp.MustCompile(`\bStarting\b`),
		regexp.MustCompile(`\bStopping\b`),
		regexp.MustCompile(`\bRemoving\b`),
	}
	dockerErrorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Cannot connect to the Docker daemon`),
		regexp.MustCompile(`permission denied while trying to connect`),
		regexp.MustCompile(`(?:manifest|repository).* not found`),
		regexp.MustCompile(`Error response from daemon`),
	}
)

// DockerDetector recognizes Docker CLI progress and error output.
type DockerDetector struct{}

// NewDockerDetector creates the Docker state detector.
func NewDockerDetector() *DockerDetector { return &DockerDetector{} }

// Metadata implements parser.StateParser.
func (d *DockerDetector) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "docker-state",
		Description: "Detects pull/push/build/compose progress and daemon errors",
		Priority:    50,
	}
}

// DetectState implements parser.StateParser.
func (d *DockerDetector) DetectState(ctx *parser.Context) *parser.StateDetection {
	lines := ctx.LastLines
	if len(lines) == 0 {
		return nil
	}

	for _, line := range lines {
		for _, re := range dockerErrorPatterns {
			if re.MatchString(line) {
				return &parser.StateDetection{State: parser.StateError, Confidence: 0.9}
			}
		}
	}

	if op := dockerOperation(lines); op != "" {
		conf := 0.85
		if op == "compose" {
			conf = 0.8
		}
		return &parser.StateDetection{
			State:      parser.StateToolRunning,
			Confidence: conf,
			Meta:       map[string]any{"op": op},
		}
	}

	// A trailing prompt after docker output means the command finished.
	last := lastNonEmpty(lines)
	for _, re := range shellPromptPatterns {
		if re.MatchString(last) {
			return &parser.StateDetection{State: parser.StateIdle, Confidence: 0.7}
		}
	}

	return nil
}

func dockerOperation(lines []string) string {
	for _, line := range lines {
		for _, re := range dockerPullPushPatterns {
			if re.MatchString(line) {
				return "pull/push"
			}
		}
	}
	for _, line := range lines {
		for _, re := range dockerBuildPatterns {
			if re.MatchString(line) {
				return "build"
			}
		}
	}
	for _, line := range lines {
		for _, re := range dockerComposePatterns {
			if re.MatchString(line) {
				return "compose"
			}
		}
	}
	return ""
}
