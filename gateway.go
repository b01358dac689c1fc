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

package tally

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	stripeclient "github.com/stripe/stripe-go/v76/client"

	"github.com/tally-money/tally/config"
)

// PaymentGateway executes an automatic charge against a payer's default
// instrument and returns a gateway reference on success. Implementations
// must honor context cancellation; a timeout is indistinguishable from a
// decline to the settlement processor.
type PaymentGateway interface {
	Charge(ctx context.Context, payerID string, amount int64) (string, error)
}

// StripeGateway charges the payer's Stripe customer record off-session using
// their default payment method.
type StripeGateway struct {
	api      *stripeclient.API
	currency string
}

func NewStripeGateway(conf *config.Configuration) *StripeGateway {
	api := &stripeclient.API{}
	api.Init(conf.Gateway.StripeKey, nil)
	return &StripeGateway{
		api:      api,
		currency: conf.Gateway.Currency,
	}
}

func (g *StripeGateway) Charge(ctx context.Context, payerID string, amount int64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Amount:     stripe.Int64(amount),
		Currency:   stripe.String(g.currency),
		Customer:   stripe.String(payerID),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return "", err
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return "", fmt.Errorf("charge for payer %s did not succeed: %s", payerID, intent.Status)
	}
	return intent.ID, nil
}
