package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// newDashCmd creates the "offload dash" subcommand.
func newDashCmd(flags *rootFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "dash",
		Short: "Interactive dashboard of package status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.statusStore()
			if err != nil {
				return err
			}
			changes, err := store.Watch(cmd.Context())
			if err != nil {
				return err
			}

			p := tea.NewProgram(newDashModel(store, changes, all), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("run dashboard: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "start with finished packages listed")
	return cmd
}
