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
	"time"

	"github.com/spf13/cobra"

	"github.com/tally-money/tally/model"
)

// ticketCommands defines the "tickets" command group for operator access to
// the ticket store: create a ticket, fetch one, list by status.
func ticketCommands(b *tallyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "manage settlement tickets",
	}

	cmd.AddCommand(createTicketCommand(b))
	cmd.AddCommand(getTicketCommand(b))
	cmd.AddCommand(listTicketsCommand(b))

	return cmd
}

func createTicketCommand(b *tallyInstance) *cobra.Command {
	var (
		loanerID string
		loaneeID string
		amount   int64
		method   string
		dueIn    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "create a new ticket",
		Run: func(cmd *cobra.Command, args []string) {
			ticket := &model.Ticket{
				LoanerID: loanerID,
				LoaneeID: loaneeID,
				Amount:   amount,
				Method:   method,
			}
			if dueIn > 0 {
				ticket.DueDate = time.Now().Add(dueIn)
			}

			created, err := b.tally.CreateTicket(context.Background(), ticket)
			if err != nil {
				log.Fatalf("could not create ticket: %v", err)
			}
			out, _ := created.ToJSON()
			log.Printf("Ticket created: %s", out)
		},
	}

	cmd.Flags().StringVar(&loanerID, "loaner", "", "ID of the party owed")
	cmd.Flags().StringVar(&loaneeID, "loanee", "", "ID of the party owing")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount owed in minor units")
	cmd.Flags().StringVar(&method, "method", model.MethodCash, "settlement method: CASH, MANUAL_CARD or AUTO_CARD")
	cmd.Flags().DurationVar(&dueIn, "due-in", 0, "time until the ticket is due (default 168h)")

	return cmd
}

func getTicketCommand(b *tallyInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "get <ticket-id>",
		Short: "fetch a ticket by ID",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ticket, err := b.tally.GetTicket(context.Background(), args[0])
			if err != nil {
				log.Fatalf("could not fetch ticket: %v", err)
			}
			out, _ := ticket.ToJSON()
			log.Println(string(out))
		},
	}
}

func listTicketsCommand(b *tallyInstance) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list tickets by status",
		Run: func(cmd *cobra.Command, args []string) {
			tickets, err := b.tally.ListTickets(context.Background(), status)
			if err != nil {
				log.Fatalf("could not list tickets: %v", err)
			}
			for _, ticket := range tickets {
				out, _ := ticket.ToJSON()
				log.Println(string(out))
			}
			log.Printf("%d tickets in status %s", len(tickets), status)
		},
	}

	cmd.Flags().StringVar(&status, "status", model.StatusPending, "ticket status: PENDING, PAID or OVERDUE")

	return cmd
}
