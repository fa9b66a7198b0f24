package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/osbuild/osbuild-bootdisk/internal/iso"
)

var inspectScript bool

var inspectCmd = &cobra.Command{
	Use:   "inspect IMAGE",
	Short: "Show the boot layout and files of a boot disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return inspect(cmd.OutOrStdout(), f, inspectScript)
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectScript, "script", false, "print the embedded iPXE script only")
}

func inspect(w io.Writer, f *os.File, scriptOnly bool) error {
	if scriptOnly {
		script, err := iso.ReadScript(f)
		if err != nil {
			return err
		}
		_, err = w.Write(script)
		return err
	}

	layout, err := iso.Inspect(f)
	if err != nil {
		return err
	}
	files, err := iso.ListFiles(f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Volume:       %s (%d blocks)\n", layout.VolumeID, layout.VolumeBlocks)
	fmt.Fprintf(w, "Boot catalog: sector %d, platform %#02x\n", layout.BootCatalog, layout.Platform)
	fmt.Fprintf(w, "Boot entry:   bootable=%t emulation=%d load_segment=%#04x sectors=%d rba=%d\n",
		layout.Bootable, layout.Emulation, layout.LoadSegment, layout.LoadSize, layout.LoadRBA)
	fmt.Fprintln(w, "Files:")
	for _, name := range files {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}
