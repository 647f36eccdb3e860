package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/pulpytale/bittensor-utils/internal/config"
)

func watchCommand(t *testing.T, args ...string) (*cobra.Command, *config.Config, *watchFlags) {
	t.Helper()
	cfg := config.Default()
	var flags watchFlags
	cmd := &cobra.Command{Use: "buy"}
	addWatchFlags(cmd, cfg, &flags)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd, cfg, &flags
}

func TestFileSubmissionSettingsSurvive(t *testing.T) {
	cmd, cfg, flags := watchCommand(t)

	file := config.Default()
	file.Submission.WaitForInclusion = false
	file.Submission.WaitForFinalization = true

	mergeFileConfig(cmd, cfg, file)
	applySubmissionFlags(cmd, cfg, flags)

	if cfg.Submission.WaitForInclusion {
		t.Fatalf("wait_for_inclusion=false from the file was discarded")
	}
	if !cfg.Submission.WaitForFinalization {
		t.Fatalf("wait_for_finalization=true from the file was discarded")
	}
}

func TestSubmissionFlagsWinOverFile(t *testing.T) {
	cmd, cfg, flags := watchCommand(t, "--wait-for-finalization=false", "--no-wait-for-inclusion")

	file := config.Default()
	file.Submission.WaitForInclusion = true
	file.Submission.WaitForFinalization = true

	mergeFileConfig(cmd, cfg, file)
	applySubmissionFlags(cmd, cfg, flags)

	if cfg.Submission.WaitForInclusion {
		t.Fatalf("--no-wait-for-inclusion did not override the file")
	}
	if cfg.Submission.WaitForFinalization {
		t.Fatalf("--wait-for-finalization=false did not override the file")
	}
}

func TestFlaglessDefaultsKeepInclusionWait(t *testing.T) {
	cmd, cfg, flags := watchCommand(t)
	applySubmissionFlags(cmd, cfg, flags)

	if !cfg.Submission.WaitForInclusion {
		t.Fatalf("default must wait for inclusion")
	}
	if cfg.Submission.WaitForFinalization {
		t.Fatalf("default must not wait for finalization")
	}
}
