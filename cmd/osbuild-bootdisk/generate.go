package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/osbuild/osbuild-bootdisk/internal/bootdisk"
	"github.com/osbuild/osbuild-bootdisk/internal/ipxe"
	"github.com/osbuild/osbuild-bootdisk/internal/iso"
)

var (
	generateOutput string
	generateSuffix bool
)

var generateCmd = &cobra.Command{
	Use:   "generate {generic | host ID | full_host ID}",
	Short: "Write a boot disk to the output directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := ipxe.ParseKind(args[0])
		if err != nil {
			return err
		}
		if kind == ipxe.KindGeneric && len(args) != 1 {
			return fmt.Errorf("generic images take no host id")
		}
		if kind != ipxe.KindGeneric && len(args) != 2 {
			return fmt.Errorf("%s images need a host id", kind)
		}

		ctx := cmd.Context()
		c, err := newComponents(ctx, config)
		if err != nil {
			return err
		}
		defer c.Close()

		if generateSuffix {
			if kind != ipxe.KindFullHost {
				return fmt.Errorf("only full_host images carry a token suffix")
			}
			suffix, err := c.service.TokenSuffixFor(ctx, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), suffix)
			return nil
		}

		path, err := generate(ctx, c.service, kind, args[1:], generateOutput)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", ".", "directory the image is written to")
	generateCmd.Flags().BoolVar(&generateSuffix, "suffix", false, "only print the file name suffix a full_host image would get")
}

// generate writes the image of kind to dir under its suggested name and
// returns the resulting path.
func generate(ctx context.Context, service *bootdisk.Service, kind ipxe.Kind, args []string, dir string) (string, error) {
	var path string
	save := func(img *iso.Image) error {
		path = filepath.Join(dir, img.Name)
		return copyImage(img, path)
	}

	var err error
	switch kind {
	case ipxe.KindGeneric:
		err = service.GenerateGeneric(ctx, save)
	case ipxe.KindHost:
		err = service.GenerateHost(ctx, args[0], save)
	case ipxe.KindFullHost:
		err = service.GenerateFullHost(ctx, args[0], save)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func copyImage(img *iso.Image, path string) error {
	src, err := img.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("error writing %s: %v", path, err)
	}
	return dst.Close()
}
