package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/duespay/internal/balance"
	"github.com/smallbiznis/duespay/internal/billingtest"
	"github.com/smallbiznis/duespay/internal/clock"
	"github.com/smallbiznis/duespay/internal/config"
	"github.com/smallbiznis/duespay/internal/invoice"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	"github.com/smallbiznis/duespay/internal/member"
	memberdomain "github.com/smallbiznis/duespay/internal/member/domain"
	"github.com/smallbiznis/duespay/internal/migration"
	"github.com/smallbiznis/duespay/internal/observability"
	"github.com/smallbiznis/duespay/internal/payment"
	paymentdomain "github.com/smallbiznis/duespay/internal/payment/domain"
	"github.com/smallbiznis/duespay/internal/providers"
	emailprovider "github.com/smallbiznis/duespay/internal/providers/email"
	"github.com/smallbiznis/duespay/internal/reminder"
	"github.com/smallbiznis/duespay/internal/scheduler"
	"github.com/smallbiznis/duespay/internal/server"
	"github.com/smallbiznis/duespay/internal/settings"
	"github.com/smallbiznis/duespay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app       *fx.App
	db        *gorm.DB
	clock     *clock.FakeClock
	mailer    *billingtest.Mailer
	scheduler *scheduler.Scheduler
	httpSrv   *httptest.Server
	baseURL   string
}

func startEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("HTTP_ADDR", "127.0.0.1:0")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "duespay.db"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SCHEDULER_ENABLED", "true")

	env := &testEnv{
		clock:  clock.NewFakeClock(time.Date(2025, time.November, 3, 5, 5, 0, 0, time.UTC)),
		mailer: billingtest.NewMailer(),
	}

	var srv *server.Server
	env.app = fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
		clock.Module,
		providers.Module,
		member.Module,
		balance.Module,
		invoice.Module,
		payment.Module,
		settings.Module,
		reminder.Module,
		scheduler.Module,
		server.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		fx.Decorate(func(clock.Clock) clock.Clock { return env.clock }),
		fx.Decorate(func(emailprovider.Factory) emailprovider.Factory { return env.mailer.Factory() }),
		fx.Populate(&srv, &env.db, &env.scheduler),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, env.app.Start(ctx))

	env.httpSrv = httptest.NewServer(srv.Engine())
	env.baseURL = env.httpSrv.URL

	t.Cleanup(func() {
		env.httpSrv.Close()
		_ = env.app.Stop(context.Background())
	})
	return env
}

func (e *testEnv) call(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.baseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type idResponse struct {
	Data struct {
		ID snowflake.ID `json:"id"`
	} `json:"data"`
}

func (e *testEnv) createMember(t *testing.T, name, email, plan, startDate string) snowflake.ID {
	t.Helper()
	var resp idResponse
	status := e.call(t, http.MethodPost, "/api/members", map[string]string{
		"name":              name,
		"email":             email,
		"subscription_type": plan,
		"status":            string(memberdomain.StatusActive),
		"start_date":        startDate,
	}, &resp)
	require.Equal(t, http.StatusCreated, status)
	require.NotZero(t, resp.Data.ID)
	return resp.Data.ID
}

func (e *testEnv) memberBalance(t *testing.T, id snowflake.ID) string {
	t.Helper()
	var resp struct {
		Data memberdomain.Member `json:"data"`
	}
	require.Equal(t, http.StatusOK, e.call(t, http.MethodGet, "/api/members/"+id.String(), nil, &resp))
	return resp.Data.Balance
}

func (e *testEnv) openInvoice(t *testing.T, memberID snowflake.ID) invoicedomain.Invoice {
	t.Helper()
	var inv invoicedomain.Invoice
	require.NoError(t, e.db.Where("member_id = ?", memberID).Order("created_at DESC").First(&inv).Error)
	return inv
}

func TestE2E_HealthCheck(t *testing.T) {
	env := startEnv(t)

	resp, err := http.Get(env.baseURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2E_InvoiceReminderAndPaymentFlow(t *testing.T) {
	env := startEnv(t)

	memberID := env.createMember(t, "Amina Rahman", "amina@example.com", memberdomain.SubscriptionLifetime, "2024-10-01")

	var generated struct {
		Data struct {
			Generation invoicedomain.GenerationResult `json:"generation"`
		} `json:"data"`
	}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/api/billing/invoices/generate", nil, &generated))
	assert.Equal(t, 1, generated.Data.Generation.Created)

	inv := env.openInvoice(t, memberID)
	assert.Equal(t, "Nov 2025 Lifetime Membership", inv.Period)
	assert.Equal(t, "$250.00", inv.Amount)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, inv.Status)
	assert.Equal(t, "$250.00 Outstanding", env.memberBalance(t, memberID))

	// A second pass the same day finds the open invoice and creates nothing.
	require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/api/billing/invoices/generate", nil, &generated))
	assert.Equal(t, 0, generated.Data.Generation.Created)

	configured := billingtest.ConfiguredSettings(true, 7)
	require.Equal(t, http.StatusOK, env.call(t, http.MethodPut, "/api/settings/email", map[string]any{
		"automation_enabled": configured.AutomationEnabled,
		"reminder_interval":  configured.ReminderInterval,
		"smtp_host":          configured.SMTPHost,
		"smtp_port":          configured.SMTPPort,
		"from_address":       configured.FromAddress,
		"from_name":          configured.FromName,
	}, nil))

	var dispatched struct {
		Data struct {
			Delivered int `json:"delivered"`
		} `json:"data"`
	}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/api/billing/reminders/check", nil, &dispatched))
	assert.Equal(t, 1, dispatched.Data.Delivered)
	require.Len(t, env.mailer.Sent(), 1)
	assert.Equal(t, "amina@example.com", env.mailer.Sent()[0].To)

	// Inside the interval the automated check stays quiet.
	require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/api/billing/reminders/check", nil, &dispatched))
	assert.Equal(t, 0, dispatched.Data.Delivered)
	assert.Len(t, env.mailer.Sent(), 1)

	var submitted idResponse
	require.Equal(t, http.StatusCreated, env.call(t, http.MethodPost, "/api/payments", map[string]string{
		"invoice_id": inv.ID.String(),
		"method":     "Zelle",
		"reference":  "ZX-1001",
	}, &submitted))
	assert.Equal(t, invoicedomain.InvoiceStatusPendingVerification, env.openInvoice(t, memberID).Status)
	assert.Equal(t, "$0", env.memberBalance(t, memberID))

	var approved struct {
		Data paymentdomain.Payment `json:"data"`
	}
	paymentPath := "/api/payments/" + submitted.Data.ID.String()
	require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, paymentPath+"/approve", map[string]string{"actor": "treasurer"}, &approved))
	assert.Equal(t, paymentdomain.StatusCompleted, approved.Data.Status)
	assert.Equal(t, "treasurer", approved.Data.ApprovedBy)

	paid := env.openInvoice(t, memberID)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, "Zelle", paid.Method)
	assert.Equal(t, "$0", env.memberBalance(t, memberID))
	assert.Len(t, env.mailer.Sent(), 2)

	assert.Equal(t, http.StatusConflict, env.call(t, http.MethodPost, paymentPath+"/reject", map[string]string{"actor": "treasurer"}, nil))
}

func TestE2E_RejectedPaymentReopensInvoice(t *testing.T) {
	env := startEnv(t)

	memberID := env.createMember(t, "Yusuf Ali", "yusuf@example.com", memberdomain.SubscriptionYearlyJanaza, "2024-06-15")
	require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/api/billing/invoices/generate", nil, nil))

	inv := env.openInvoice(t, memberID)
	assert.Equal(t, "$500.00", inv.Amount)

	var submitted idResponse
	require.Equal(t, http.StatusCreated, env.call(t, http.MethodPost, "/api/payments", map[string]string{
		"invoice_id": inv.ID.String(),
		"method":     "Check",
	}, &submitted))

	paymentPath := "/api/payments/" + submitted.Data.ID.String()
	require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, paymentPath+"/reject", map[string]string{
		"actor":  "treasurer",
		"reason": "check bounced",
	}, nil))

	reopened := env.openInvoice(t, memberID)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, reopened.Status)
	assert.Empty(t, reopened.Method)
	assert.Equal(t, "$500.00 Outstanding", env.memberBalance(t, memberID))

	// No mailer configured, so the decision is recorded without a notification.
	assert.Empty(t, env.mailer.Sent())

	assert.Equal(t, http.StatusNoContent, env.call(t, http.MethodDelete, paymentPath, nil, nil))
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodDelete, paymentPath, nil, nil))
}

func TestE2E_SettingsRescheduleReminderJob(t *testing.T) {
	env := startEnv(t)

	spec, ok := env.scheduler.Scheduled(scheduler.JobInvoiceGeneration)
	require.True(t, ok)
	assert.Equal(t, "5 0 * * *", spec)
	_, ok = env.scheduler.Scheduled(scheduler.JobReminderCheck)
	assert.False(t, ok, "automation is off until settings enable it")

	require.Equal(t, http.StatusOK, env.call(t, http.MethodPut, "/api/settings/email", map[string]any{
		"schedule_time":      "07:30",
		"automation_enabled": true,
	}, nil))
	spec, ok = env.scheduler.Scheduled(scheduler.JobReminderCheck)
	require.True(t, ok)
	assert.Equal(t, "30 7 * * *", spec)

	require.Equal(t, http.StatusOK, env.call(t, http.MethodPut, "/api/settings/email", map[string]any{
		"automation_enabled": false,
	}, nil))
	_, ok = env.scheduler.Scheduled(scheduler.JobReminderCheck)
	assert.False(t, ok)

	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPut, "/api/settings/email", map[string]any{
		"schedule_time": "25:00",
	}, nil))
}

func TestE2E_RunJobThroughScheduler(t *testing.T) {
	env := startEnv(t)

	memberID := env.createMember(t, "Fatima Noor", "fatima@example.com", memberdomain.SubscriptionLifetime, "2023-01-10")

	require.Equal(t, http.StatusAccepted, env.call(t, http.MethodPost, "/api/billing/jobs/"+scheduler.JobInvoiceGeneration+"/run", nil, nil))
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, env.openInvoice(t, memberID).Status)

	// Past the due date the same job sweeps the invoice to overdue.
	env.clock.Advance(366 * 24 * time.Hour)
	require.Equal(t, http.StatusAccepted, env.call(t, http.MethodPost, "/api/billing/jobs/"+scheduler.JobInvoiceGeneration+"/run", nil, nil))
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, env.openInvoice(t, memberID).Status)
	assert.Equal(t, "$250.00 Overdue", env.memberBalance(t, memberID))

	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPost, "/api/billing/jobs/nightly/run", nil, nil))
}
