package main

import (
	"fmt"
	"io"
	"sort"

	"hdsfetch/internal/filesystem"
	"hdsfetch/internal/flv"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Summarize the header and tags of an FLV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := filesystem.OpenInput(args[0])
		if err != nil {
			return err
		}
		defer in.Close()

		s, err := flv.Probe(in)
		if err != nil {
			return fmt.Errorf("probe %s: %w", args[0], err)
		}
		printSummary(cmd.OutOrStdout(), args[0], s)
		return nil
	},
}

func printSummary(w io.Writer, name string, s *flv.Summary) {
	fmt.Fprintf(w, "%s: FLV version %d, %s\n", name, s.Version, humanize.Bytes(uint64(s.Size)))
	fmt.Fprintf(w, "  audio: %t, video: %t\n", s.Audio, s.Video)
	for _, t := range []flv.TagType{flv.TagAudio, flv.TagVideo, flv.TagScriptData} {
		fmt.Fprintf(w, "  %s tags: %d\n", t, s.Tags[t])
	}
	fmt.Fprintf(w, "  last timestamp: %.3f s\n", float64(s.LastTimestamp)/1000)

	if len(s.Metadata) == 0 {
		return
	}
	keys := lo.Keys(s.Metadata)
	sort.Strings(keys)
	fmt.Fprintln(w, "  metadata:")
	for _, k := range keys {
		fmt.Fprintf(w, "    %s: %v\n", k, s.Metadata[k])
	}
}
