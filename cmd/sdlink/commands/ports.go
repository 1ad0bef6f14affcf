package commands

import (
	"fmt"

	"github.com/rtgs-lab/sdlink/pkg/errors"
	"github.com/rtgs-lab/sdlink/pkg/serialport"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and flag Particle devices",
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := serialport.ListPorts()
	if err != nil {
		return errors.Wrap(err, "port enumeration failed")
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Printf("%-24s %-10s %s\n", "DEVICE", "PARTICLE", "DESCRIPTION")
	fmt.Println("----------------------------------------------------------------")

	for _, p := range ports {
		mark := "-"
		if p.IsParticle {
			mark = "yes"
		}
		fmt.Printf("%-24s %-10s %s\n", p.Device, mark, p.Description)
	}

	return nil
}
