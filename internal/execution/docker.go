package execution

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
)

// DockerRuntime executes commands in Docker containers.
// The working directory is bind-mounted at its own host path so that absolute
// paths in the command line resolve identically inside the container.
type DockerRuntime struct {
	// DockerCommand is the path to the docker binary (default: "docker").
	DockerCommand string
}

// Run executes a command in a Docker container.
func (r *DockerRuntime) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	if len(spec.Command) == 0 {
		return nil, ErrEmptyCommand
	}
	if spec.Image == "" {
		return nil, ErrNoDockerImage
	}

	dockerCmd := r.DockerCommand
	if dockerCmd == "" {
		dockerCmd = "docker"
	}

	cmd := exec.CommandContext(ctx, dockerCmd, dockerArgs(spec)...)
	return runProcess(cmd, spec)
}

func dockerArgs(spec RunSpec) []string {
	args := []string{"run", "--rm", "-i"}

	workDir := resolveSymlinks(spec.WorkDir)
	args = append(args, "--mount", fmt.Sprintf("type=bind,source=%s,target=%s", workDir, spec.WorkDir))
	args = append(args, "-w", spec.WorkDir)

	for _, hostPath := range sortedVolumeKeys(spec.Volumes) {
		resolved := resolveSymlinks(hostPath)
		args = append(args, "--mount", fmt.Sprintf("type=bind,source=%s,target=%s,readonly", resolved, spec.Volumes[hostPath]))
	}

	envKeys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		args = append(args, "-e", k+"="+spec.Env[k])
	}

	args = append(args, spec.Image)
	return append(args, spec.Command...)
}

func sortedVolumeKeys(volumes map[string]string) []string {
	keys := make([]string, 0, len(volumes))
	for k := range volumes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
