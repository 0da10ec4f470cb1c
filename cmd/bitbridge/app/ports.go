package app

import (
	"fmt"

	"github.com/goodieshq/bitbridge/internal/transport"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

func newPortsCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List attached micro:bit serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				ports []*enumerator.PortDetails
				err   error
			)
			if all {
				ports, err = enumerator.GetDetailedPortsList()
			} else {
				ports, err = transport.FindMicrobits()
			}
			if err != nil {
				return fmt.Errorf("failed to list ports: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), portTable(ports))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "List every serial port, not only micro:bits")
	return cmd
}

func portTable(ports []*enumerator.PortDetails) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 48
	table.AddRow("PORT", "VID:PID", "SERIAL", "MICROBIT")
	for _, p := range ports {
		id := "-"
		if p.IsUSB {
			id = p.VID + ":" + p.PID
		}
		table.AddRow(p.Name, id, p.SerialNumber, transport.IsMicrobit(p))
	}
	return table
}
