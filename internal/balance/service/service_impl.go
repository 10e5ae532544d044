package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	balancedomain "github.com/smallbiznis/duespay/internal/balance/domain"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	"github.com/smallbiznis/duespay/internal/invoice/format"
	memberdomain "github.com/smallbiznis/duespay/internal/member/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	InvoiceRepo invoicedomain.Repository
	MemberRepo  memberdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	invoiceRepo invoicedomain.Repository
	memberRepo  memberdomain.Repository
}

func New(p Params) balancedomain.Calculator {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("balance.service"),
		invoiceRepo: p.InvoiceRepo,
		memberRepo:  p.MemberRepo,
	}
}

func (s *Service) Recompute(ctx context.Context, memberID snowflake.ID) (string, error) {
	invoices, err := s.invoiceRepo.ListByMemberAndStatus(ctx, s.db, memberID, invoicedomain.OutstandingStatuses)
	if err != nil {
		return "", fmt.Errorf("list outstanding invoices: %w", err)
	}

	total, overdue, err := Summarize(invoices)
	if err != nil {
		return "", err
	}
	balance := format.FormatBalance(total, overdue)

	updated, err := s.memberRepo.UpdateBalance(ctx, s.db, memberID, balance)
	if err != nil {
		return "", fmt.Errorf("update member balance: %w", err)
	}
	if !updated {
		s.log.Warn("balance.member_missing", zap.String("member_id", memberID.String()))
		return "", memberdomain.ErrNotFound
	}

	s.log.Debug("balance.recomputed",
		zap.String("member_id", memberID.String()),
		zap.String("balance", balance),
		zap.Int("invoice_count", len(invoices)),
	)
	return balance, nil
}

// Summarize totals the amounts of outstanding invoices and reports whether any
// of them is Overdue. Invoices in other statuses are ignored.
func Summarize(invoices []*invoicedomain.Invoice) (decimal.Decimal, bool, error) {
	total := decimal.Zero
	overdue := false
	for _, inv := range invoices {
		if inv == nil {
			continue
		}
		if inv.Status != invoicedomain.InvoiceStatusUnpaid && inv.Status != invoicedomain.InvoiceStatusOverdue {
			continue
		}
		amount, err := format.ParseAmount(inv.Amount)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("invoice %s: %w: %w", inv.ID, invoicedomain.ErrInvalidAmount, err)
		}
		total = total.Add(amount)
		if inv.Status == invoicedomain.InvoiceStatusOverdue {
			overdue = true
		}
	}
	return total, overdue, nil
}
