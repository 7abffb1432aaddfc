package execution

import (
	"context"
	"os/exec"
	"sort"
)

// ApptainerRuntime executes commands in Apptainer containers.
type ApptainerRuntime struct {
	// ApptainerCommand is the path to the apptainer binary (default: "apptainer").
	ApptainerCommand string
}

// Run executes a command in an Apptainer container.
func (r *ApptainerRuntime) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	if len(spec.Command) == 0 {
		return nil, ErrEmptyCommand
	}
	if spec.Image == "" {
		return nil, ErrNoDockerImage
	}

	apptainerCmd := r.ApptainerCommand
	if apptainerCmd == "" {
		apptainerCmd = "apptainer"
	}

	cmd := exec.CommandContext(ctx, apptainerCmd, apptainerArgs(spec)...)
	return runProcess(cmd, spec)
}

func apptainerArgs(spec RunSpec) []string {
	args := []string{"exec", "--containall"}

	workDir := resolveSymlinks(spec.WorkDir)
	args = append(args, "--bind", workDir+":"+spec.WorkDir)
	args = append(args, "--pwd", spec.WorkDir)

	for _, hostPath := range sortedVolumeKeys(spec.Volumes) {
		args = append(args, "--bind", resolveSymlinks(hostPath)+":"+spec.Volumes[hostPath]+":ro")
	}

	envKeys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		args = append(args, "--env", k+"="+spec.Env[k])
	}

	// Images are pulled from Docker registries.
	args = append(args, "docker://"+spec.Image)
	return append(args, spec.Command...)
}
