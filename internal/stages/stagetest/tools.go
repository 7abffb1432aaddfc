// Package stagetest installs stand-ins for the external tools the stage
// descriptors call, so the real descriptors can run through a local runtime
// in tests.
package stagetest

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// FailEnv names the environment variable that makes the fake aligner fail.
// When set, bowtie2 exits 1 for any invocation whose arguments contain the
// value, after writing a partial SAM file.
const FailEnv = "VIROCOV_FAKE_BOWTIE2_FAIL"

// CoverageRow is the single data row the fake samtools coverage prints.
const CoverageRow = "KJ660346.2\t1\t18959\t1\t4\t0.0211\t0.000211\t38\t42"

var tools = map[string]string{
	"bowtie2-build": `#!/bin/sh
for prefix; do :; done
touch "$prefix.1.bt2" "$prefix.rev.1.bt2"
`,
	"bowtie2": `#!/bin/sh
out=
args=" $* "
while [ $# -gt 0 ]; do
	if [ "$1" = -S ]; then out=$2; fi
	shift
done
[ -n "$out" ] || { echo "bowtie2: no -S output" >&2; exit 2; }
printf '@HD\tVN:1.6\tSO:unsorted\n' > "$out"
if [ -n "$` + FailEnv + `" ]; then
	case "$args" in
	*"$` + FailEnv + `"*) echo "bowtie2: reads file is truncated" >&2; exit 1 ;;
	esac
fi
printf 'r1\t0\tKJ660346.2\t1\t42\t4M\t*\t0\t0\tACGT\tIIII\n' >> "$out"
`,
	"samtools": `#!/bin/sh
cmd=$1
shift
case "$cmd" in
sort)
	out=
	while [ $# -gt 1 ]; do
		if [ "$1" = -o ]; then out=$2; fi
		shift
	done
	cp "$1" "$out"
	;;
index)
	touch "$1.bai"
	;;
coverage)
	printf '#rname\tstartpos\tendpos\tnumreads\tcovbases\tcoverage\tmeandepth\tmeanbaseq\tmeanmapq\n'
	printf '%s\n' "` + CoverageRow + `"
	;;
*)
	echo "samtools: unknown command $cmd" >&2
	exit 2
	;;
esac
`,
}

// InstallTools writes fake bowtie2-build, bowtie2 and samtools scripts into
// a temporary directory and puts it first on PATH for the rest of the test.
// The test is skipped when no POSIX shell is available.
func InstallTools(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no POSIX shell available")
	}
	dir := t.TempDir()
	for name, script := range tools {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755); err != nil {
			t.Fatalf("install %s: %v", name, err)
		}
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}
