package burner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"blustash/internal/blustash"
)

// execCommand is swapped out in tests.
var execCommand = exec.CommandContext

// Xorriso drives the external xorriso binary: it burns a mapping manifest to
// an optical device as a new session, lists the sessions already on a disc,
// and verifies recorded checksums. Burning typically needs device access, so
// the command can be prefixed with sudo.
type Xorriso struct {
	logger blustash.Logger
	sudo   bool
}

// New creates a Xorriso burner.
func New(logger blustash.Logger, sudo bool) *Xorriso {
	return &Xorriso{logger: logger, sudo: sudo}
}

// Burn writes the manifest's mappings to the device. finalize closes the
// disc after burning.
func (x *Xorriso) Burn(ctx context.Context, device, mappingFile string, finalize bool) (*blustash.BurnResult, error) {
	absMapping, err := filepath.Abs(mappingFile)
	if err != nil {
		return nil, fmt.Errorf("resolving mapping file: %w", err)
	}
	args := burnArgs(device, absMapping, finalize)
	x.logger.Info("running xorriso", "device", device, "mapping", absMapping, "finalize", finalize)
	return x.run(ctx, args)
}

// Sessions lists the sessions present on the device.
func (x *Xorriso) Sessions(ctx context.Context, device string) ([]blustash.DiscSession, error) {
	x.logger.Info("listing disc sessions", "device", device)
	res, err := x.run(ctx, []string{"-indev", device, "-toc"})
	if err != nil {
		return nil, err
	}
	return parseTOC(res.Output), nil
}

// Extract restores the contents of one disc session into outputDir.
func (x *Xorriso) Extract(ctx context.Context, device string, session int, outputDir string) (*blustash.BurnResult, error) {
	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(absOut, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	x.logger.Info("extracting disc session", "device", device, "session", session, "output", absOut)
	return x.run(ctx, []string{
		"-indev", device,
		"-load", "session_no", strconv.Itoa(session),
		"-osirrox", "on",
		"-extract", "/", absOut,
	})
}

// Verify checks the disc's recorded MD5 checksums.
func (x *Xorriso) Verify(ctx context.Context, device string) (*blustash.BurnResult, error) {
	x.logger.Info("verifying disc", "device", device)
	return x.run(ctx, []string{"-indev", device, "-check_md5", "FAILURE"})
}

// run executes xorriso and captures its combined output. A nonzero exit is
// not an error here; the status travels in the result for the caller to
// judge. Only a failure to execute at all is returned as an error.
func (x *Xorriso) run(ctx context.Context, args []string) (*blustash.BurnResult, error) {
	name := "xorriso"
	if x.sudo {
		args = append([]string{"xorriso"}, args...)
		name = "sudo"
	}

	cmd := execCommand(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	res := &blustash.BurnResult{Output: string(out)}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			x.logger.Error("xorriso exited with error", "code", res.ExitCode)
			return res, nil
		}
		return nil, fmt.Errorf("running xorriso: %w", err)
	}
	return res, nil
}

// burnArgs builds the xorriso argument list for one burn.
func burnArgs(device, mappingFile string, finalize bool) []string {
	args := []string{"-dev", device, "-map_l", mappingFile, "-commit"}
	if finalize {
		args = append(args, "-close", "on")
	}
	return args
}

// parseTOC extracts session entries from xorriso -toc output. The line shape
// varies between releases ("ISO session  :   1 , start , size , volid" or
// "ISO session #1 ..."), so the number is the first integer field after the
// prefix. Every "ISO session" line is kept with its raw text, even when no
// number can be parsed.
func parseTOC(output string) []blustash.DiscSession {
	var sessions []blustash.DiscSession
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "ISO session") {
			continue
		}
		num := 0
		for _, field := range strings.Fields(strings.TrimPrefix(line, "ISO session")) {
			n, err := strconv.Atoi(strings.Trim(field, "#,:"))
			if err == nil {
				num = n
				break
			}
		}
		sessions = append(sessions, blustash.DiscSession{Number: num, Raw: line})
	}
	return sessions
}

// Compile-time check that Xorriso implements blustash.Burner
var _ blustash.Burner = (*Xorriso)(nil)
