package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
)

var hostFlags struct {
	id           string
	architecture string
	provisioning string
	mac          string
	ip           string
	netmask      string
	gateway      string
	dns          string
	kernel       string
	initrd       string
	kernelArgs   string
}

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage the local host inventory",
}

var hostsAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add or replace a host record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts, closeHosts, err := openInventory(cmd.Context(), &config.Inventory)
		if err != nil {
			return err
		}
		defer closeHosts()

		h := hostFromFlags(args[0])
		if err := hosts.Add(cmd.Context(), h); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), h.ID)
		return nil
	},
}

var hostsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print a host record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts, closeHosts, err := openInventory(cmd.Context(), &config.Inventory)
		if err != nil {
			return err
		}
		defer closeHosts()

		h, err := hosts.Host(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(h)
	},
}

var hostsRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Delete a host record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts, closeHosts, err := openInventory(cmd.Context(), &config.Inventory)
		if err != nil {
			return err
		}
		defer closeHosts()
		return hosts.Remove(cmd.Context(), args[0])
	},
}

func init() {
	f := hostsAddCmd.Flags()
	f.StringVar(&hostFlags.id, "id", "", "host id, a random uuid if empty")
	f.StringVar(&hostFlags.architecture, "arch", "x86_64", "host architecture")
	f.StringVar(&hostFlags.provisioning, "provisioning-url", "", "base url of the provisioning server")
	f.StringVar(&hostFlags.mac, "mac", "", "mac address of the primary interface")
	f.StringVar(&hostFlags.ip, "ip", "", "static address, dhcp if empty")
	f.StringVar(&hostFlags.netmask, "netmask", "", "netmask of the static address")
	f.StringVar(&hostFlags.gateway, "gateway", "", "default gateway")
	f.StringVar(&hostFlags.dns, "dns", "", "name server")
	f.StringVar(&hostFlags.kernel, "kernel-url", "", "installer kernel")
	f.StringVar(&hostFlags.initrd, "initrd-url", "", "installer initrd")
	f.StringVar(&hostFlags.kernelArgs, "kernel-args", "", "space separated installer kernel arguments")

	hostsCmd.AddCommand(hostsAddCmd, hostsShowCmd, hostsRemoveCmd)
}

func hostFromFlags(name string) inventory.Host {
	h := inventory.Host{
		ID:              hostFlags.id,
		Name:            name,
		Architecture:    hostFlags.architecture,
		ProvisioningURL: hostFlags.provisioning,
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if hostFlags.mac != "" {
		h.Interface = &inventory.Interface{
			MAC:     hostFlags.mac,
			IP:      hostFlags.ip,
			Netmask: hostFlags.netmask,
			Gateway: hostFlags.gateway,
			DNS:     hostFlags.dns,
		}
	}
	if hostFlags.kernel != "" || hostFlags.initrd != "" {
		h.Boot = &inventory.BootConfig{
			KernelURL:  hostFlags.kernel,
			InitrdURL:  hostFlags.initrd,
			KernelArgs: strings.Fields(hostFlags.kernelArgs),
		}
	}
	return h
}
