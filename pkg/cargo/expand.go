package cargo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultExpandTimeout bounds one macro-expansion invocation. Expansion
// requires a full check-profile build of the target, which can be slow the
// first time, but a hang must never stall the whole run.
const DefaultExpandTimeout = 5 * time.Minute

// targetSelector maps a target kind onto the cargo rustc selection flags.
// Build scripts cannot be expanded in isolation.
func targetSelector(t Target) ([]string, bool) {
	if len(t.Kind) == 0 {
		return nil, false
	}

	switch t.Kind[0] {
	case "lib", "rlib", "dylib", "cdylib", "staticlib", "proc-macro":
		return []string{"--lib"}, true
	case "bin":
		return []string{"--bin", t.Name}, true
	case "test":
		return []string{"--test", t.Name}, true
	case "bench":
		return []string{"--bench", t.Name}, true
	case "example":
		return []string{"--example", t.Name}, true
	default:
		return nil, false
	}
}

// ExpandTarget returns the macro-expanded source of one build target, via
// cargo rustc's unpretty mode. Nonzero exit and empty output are both
// expansion failures; callers degrade to structural extraction.
func ExpandTarget(ctx context.Context, pkg Package, target Target, timeout time.Duration) (string, error) {
	sel, ok := targetSelector(target)
	if !ok {
		return "", fmt.Errorf("%w: target kind %v not expandable", ErrExpansion, target.Kind)
	}

	if timeout <= 0 {
		timeout = DefaultExpandTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{"rustc", "-p", pkg.Name}, sel...)
	args = append(args, "--all-features", "--profile=check", "--", "-Zunpretty=expanded")

	cmd := exec.CommandContext(ctx, "cargo", args...)
	cmd.Dir = filepath.Dir(pkg.ManifestPath)
	cmd.Env = append(cmd.Environ(), "RUSTC_BOOTSTRAP=1")

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrExpansion, firstLine(stderr.Bytes()), err)
	}

	out := stdout.String()
	if len(bytes.TrimSpace(stdout.Bytes())) == 0 {
		return "", fmt.Errorf("%w: empty output for %s", ErrExpansion, target.Name)
	}

	return out, nil
}

func firstLine(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i]
	}

	return b
}
