/*
Copyright 2025 Tally Money Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

// sweepCommands defines the "sweep" command, an operator escape hatch that
// runs one overdue sweep immediately instead of waiting for the periodic one.
func sweepCommands(b *tallyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "run one overdue ticket sweep now",
		Run: func(cmd *cobra.Command, args []string) {
			count, err := b.tally.SweepOverdueTickets(context.Background())
			if err != nil {
				log.Fatalf("sweep failed: %v", err)
			}
			log.Printf("Sweep complete, %d overdue tickets processed", count)
		},
	}

	return cmd
}
