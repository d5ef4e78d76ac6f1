// Package payments supplies rail-agnostic command logic for the pipeline.
// Rail-specific lifecycle state machines (NPP, BECS, RTGS, Cards clearing)
// live outside this service; the logic here covers the orchestration-level
// initiate/settle/return decisions and emits the facts the ledger replays.
package payments

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/command"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/event"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/rejection"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/schema"
)

const (
	CommandInitiatePayment = "InitiatePayment"
	CommandSettlePayment   = "SettlePayment"
	CommandReturnPayment   = "ReturnPayment"
)

var rails = map[string]bool{"npp": true, "becs": true, "rtgs": true, "cards": true}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Register wires the payment command logic into the handler's registry.
func Register(reg *command.Registry, gate *schema.Gate) {
	reg.Register(CommandInitiatePayment, &initiateLogic{gate: gate})
	reg.Register(CommandSettlePayment, &settleLogic{gate: gate})
	reg.Register(CommandReturnPayment, &returnLogic{gate: gate})
}

type initiateLogic struct {
	gate *schema.Gate
}

func (l *initiateLogic) Validate(ctx context.Context, cmd *command.Command) error {
	amount, err := amountOf(cmd)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return rejection.BusinessRule(fmt.Sprintf("amount must be positive, got %v", amount))
	}
	if currency := stringAttr(cmd, "currency"); !currencyPattern.MatchString(currency) {
		return rejection.BusinessRule(fmt.Sprintf("currency must be a 3-letter ISO code, got %q", currency))
	}
	if rail := stringAttr(cmd, "rail"); !rails[rail] {
		return rejection.BusinessRule(fmt.Sprintf("unsupported rail %q", rail))
	}
	if stringAttr(cmd, "debtor_account") == "" || stringAttr(cmd, "creditor_account") == "" {
		return rejection.BusinessRule("debtor_account and creditor_account are required")
	}
	return nil
}

func (l *initiateLogic) Execute(ctx context.Context, cmd *command.Command) (string, error) {
	amount, err := amountOf(cmd)
	if err != nil {
		return "", err
	}
	paymentID := uuid.NewString()
	payload := map[string]any{
		"payment_id":       paymentID,
		"rail":             stringAttr(cmd, "rail"),
		"amount":           amount,
		"currency":         stringAttr(cmd, "currency"),
		"debtor_account":   stringAttr(cmd, "debtor_account"),
		"creditor_account": stringAttr(cmd, "creditor_account"),
		"status":           "initiated",
	}
	if ref := stringAttr(cmd, "reference"); ref != "" {
		payload["reference"] = ref
	}

	env := event.New("PaymentInitiated", 1, "payment", paymentID, cmd.CorrelationID, payload)
	if err := l.gate.Emit(ctx, env); err != nil {
		return "", err
	}
	return env.EventID, nil
}

type settleLogic struct {
	gate *schema.Gate
}

func (l *settleLogic) Validate(ctx context.Context, cmd *command.Command) error {
	if stringAttr(cmd, "payment_id") == "" {
		return rejection.BusinessRule("payment_id is required")
	}
	if rail := stringAttr(cmd, "rail"); !rails[rail] {
		return rejection.BusinessRule(fmt.Sprintf("unsupported rail %q", rail))
	}
	if status := stringAttr(cmd, "status"); status != "" && status != "submitted" {
		// Settlement is only a legal transition from a submitted payment.
		return rejection.InvalidStateTransition(
			fmt.Sprintf("cannot settle payment in state %q", status), status, "settled")
	}
	amount, err := amountOf(cmd)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return rejection.BusinessRule(fmt.Sprintf("settlement amount must be positive, got %v", amount))
	}
	if currency := stringAttr(cmd, "currency"); !currencyPattern.MatchString(currency) {
		return rejection.BusinessRule(fmt.Sprintf("currency must be a 3-letter ISO code, got %q", currency))
	}
	if stringAttr(cmd, "debit_account") == "" || stringAttr(cmd, "credit_account") == "" {
		return rejection.BusinessRule("debit_account and credit_account are required")
	}
	return nil
}

func (l *settleLogic) Execute(ctx context.Context, cmd *command.Command) (string, error) {
	amount, err := amountOf(cmd)
	if err != nil {
		return "", err
	}
	paymentID := stringAttr(cmd, "payment_id")
	payload := map[string]any{
		"payment_id": paymentID,
		"rail":       stringAttr(cmd, "rail"),
		"settled_at": time.Now().UTC().Format(time.RFC3339Nano),
		"ledger_posting": map[string]any{
			"amount":         amount,
			"currency":       stringAttr(cmd, "currency"),
			"debit_account":  stringAttr(cmd, "debit_account"),
			"credit_account": stringAttr(cmd, "credit_account"),
		},
	}
	if ref := stringAttr(cmd, "settlement_reference"); ref != "" {
		payload["settlement_reference"] = ref
	}

	env := event.New("PaymentSettled", 1, "payment", paymentID, cmd.CorrelationID, payload)
	if err := l.gate.Emit(ctx, env); err != nil {
		return "", err
	}
	return env.EventID, nil
}

type returnLogic struct {
	gate *schema.Gate
}

func (l *returnLogic) Validate(ctx context.Context, cmd *command.Command) error {
	if stringAttr(cmd, "payment_id") == "" {
		return rejection.BusinessRule("payment_id is required")
	}
	if rail := stringAttr(cmd, "rail"); !rails[rail] {
		return rejection.BusinessRule(fmt.Sprintf("unsupported rail %q", rail))
	}
	if stringAttr(cmd, "return_code") == "" {
		return rejection.BusinessRule("return_code is required")
	}
	switch status := stringAttr(cmd, "status"); status {
	case "", "submitted", "settled":
		// Only an in-flight or settled payment can come back from the rail.
	default:
		return rejection.InvalidStateTransition(
			fmt.Sprintf("cannot return payment in state %q", status), status, "returned")
	}
	return nil
}

func (l *returnLogic) Execute(ctx context.Context, cmd *command.Command) (string, error) {
	paymentID := stringAttr(cmd, "payment_id")
	payload := map[string]any{
		"payment_id":  paymentID,
		"rail":        stringAttr(cmd, "rail"),
		"return_code": stringAttr(cmd, "return_code"),
		"returned_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if reason := stringAttr(cmd, "return_reason"); reason != "" {
		payload["return_reason"] = reason
	}

	env := event.New("PaymentReturned", 1, "payment", paymentID, cmd.CorrelationID, payload)
	if err := l.gate.Emit(ctx, env); err != nil {
		return "", err
	}
	return env.EventID, nil
}

func stringAttr(cmd *command.Command, key string) string {
	v, _ := cmd.Attributes[key].(string)
	return strings.TrimSpace(v)
}

func amountOf(cmd *command.Command) (float64, error) {
	switch v := cmd.Attributes["amount"].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case nil:
		return 0, rejection.BusinessRule("amount is required")
	default:
		return 0, rejection.BusinessRule(fmt.Sprintf("amount must be a number, got %T", v))
	}
}
