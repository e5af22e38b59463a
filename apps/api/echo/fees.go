package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/fees"
	exportsvc "github.com/trezcool/bursar/services/export"
)

type feesApi struct {
	svc      fees.ServiceInterface
	validate *validator.Validate
}

func registerFeesAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc fees.ServiceInterface, validate *validator.Validate) {
	api := feesApi{
		svc:      svc,
		validate: validate,
	}

	// every endpoint is restricted to the school administration
	fg := g.Group("/fees", jwt, adminMiddleware())

	fg.POST("/payments", api.recordPayment, adminMiddleware(fees.RoleAdmin, fees.RoleBursar))
	fg.GET("/payments", api.paymentsByDate)

	fg.GET("/entries/:id", api.retrieveEntry)
	fg.DELETE("/entries/:id", api.destroyEntry, adminMiddleware(fees.RoleAdmin))
	fg.POST("/repair", api.repairStatuses, adminMiddleware(fees.RoleAdmin))

	fg.GET("/students/:id/payments", api.studentPayments)
	fg.GET("/classes/:form/:section/statuses", api.classStatuses)

	fg.GET("/summaries/daily", api.dailySummary)
	fg.GET("/summaries/range", api.dailySummaries)

	fg.GET("/reports", api.report)
	fg.GET("/reports/export", api.exportReport)

	fg.GET("/schedules", api.querySchedules)
	fg.GET("/schedules/active", api.activeSchedule)
	fg.PUT("/schedules", api.setSchedule, adminMiddleware(fees.RoleAdmin))
}

type (
	dateQuery struct {
		Date string `query:"date" json:"date" validate:"required,datetime=2006-01-02"`
	}

	rangeQuery struct {
		Start string `query:"start" json:"start" validate:"required,datetime=2006-01-02"`
		End   string `query:"end" json:"end" validate:"required,datetime=2006-01-02"`
	}

	reportQuery struct {
		Term         string `query:"term" json:"term" validate:"required"`
		AcademicYear string `query:"academic_year" json:"academic_year" validate:"required"`
		rangeQuery
	}

	periodQuery struct {
		Term         string `query:"term" json:"term"`
		AcademicYear string `query:"academic_year" json:"academic_year"`
	}

	scheduleQuery struct {
		Level        string `query:"level" json:"level"`
		AcademicYear string `query:"academic_year" json:"academic_year"`
	}

	RepairResponse struct {
		Repaired int `json:"repaired"`
	}
)

// parseDate parses a date validated with the `datetime=2006-01-02` tag.
func parseDate(s string) time.Time {
	d, _ := time.Parse(fees.DateLayout, s)
	return d
}

func (q *rangeQuery) dates() (time.Time, time.Time) {
	return parseDate(q.Start), parseDate(q.End)
}

// Handlers

func (api *feesApi) recordPayment(ctx echo.Context) error {
	var data fees.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}

	rcpt, err := api.svc.RecordPayment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, rcpt)
}

func (api *feesApi) paymentsByDate(ctx echo.Context) error {
	var q dateQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to dateQuery")
	}
	if err := api.validate.Struct(&q); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	entries, err := api.svc.GetPaymentsByDate(ctx.Request().Context(), parseDate(q.Date), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying payments by date")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *feesApi) retrieveEntry(ctx echo.Context) error {
	entry, err := api.svc.GetEntry(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting ledger entry")
	}
	return ctx.JSON(http.StatusOK, entry)
}

func (api *feesApi) destroyEntry(ctx echo.Context) error {
	if err := api.svc.DeleteEntry(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting ledger entry")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *feesApi) repairStatuses(ctx echo.Context) error {
	n, err := api.svc.RepairInconsistentStatuses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "repairing statuses")
	}
	return ctx.JSON(http.StatusOK, RepairResponse{Repaired: n})
}

func (api *feesApi) studentPayments(ctx echo.Context) error {
	var q periodQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to periodQuery")
	}

	entries, err := api.svc.GetStudentPayments(ctx.Request().Context(), ctx.Param("id"), q.Term, q.AcademicYear)
	if err != nil {
		return errors.Wrap(err, "querying student payments")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *feesApi) classStatuses(ctx echo.Context) error {
	class := fees.ClassID{Form: ctx.Param("form"), Section: ctx.Param("section")}
	if class.Section == "-" { // classes without section
		class.Section = ""
	}

	groups, err := api.svc.GetPaymentStatusByClass(ctx.Request().Context(), class)
	if err != nil {
		return errors.Wrap(err, "getting class payment statuses")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *feesApi) dailySummary(ctx echo.Context) error {
	var q dateQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to dateQuery")
	}
	if err := api.validate.Struct(&q); err != nil {
		return err
	}

	sum, err := api.svc.GetDailySummary(ctx.Request().Context(), parseDate(q.Date))
	if err != nil {
		return errors.Wrap(err, "summarising day")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *feesApi) dailySummaries(ctx echo.Context) error {
	var q rangeQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to rangeQuery")
	}
	if err := api.validate.Struct(&q); err != nil {
		return err
	}

	start, end := q.dates()
	sums, err := api.svc.GetDailySummaries(ctx.Request().Context(), start, end)
	if err != nil {
		return errors.Wrap(err, "summarising days")
	}
	return ctx.JSON(http.StatusOK, sums)
}

func (api *feesApi) generateReport(ctx echo.Context) (fees.FinancialReport, error) {
	var q reportQuery
	if err := ctx.Bind(&q); err != nil {
		return fees.FinancialReport{}, errors.Wrap(err, "binding to reportQuery")
	}
	if err := api.validate.Struct(&q); err != nil {
		return fees.FinancialReport{}, err
	}

	start, end := q.dates()
	report, err := api.svc.GenerateFinancialReport(ctx.Request().Context(), q.Term, q.AcademicYear, start, end)
	return report, errors.Wrap(err, "generating financial report")
}

func (api *feesApi) report(ctx echo.Context) error {
	report, err := api.generateReport(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *feesApi) exportReport(ctx echo.Context) error {
	report, err := api.generateReport(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = exportsvc.WriteReport(&buf, report); err != nil {
		return errors.Wrap(err, "exporting financial report")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exportsvc.ReportFilename(report)))
	return ctx.Blob(http.StatusOK, exportsvc.XLSXContentType, buf.Bytes())
}

func (api *feesApi) querySchedules(ctx echo.Context) error {
	var q scheduleQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to scheduleQuery")
	}

	scheds, err := api.svc.QueryFeeSchedules(ctx.Request().Context(), q.Level, q.AcademicYear)
	if err != nil {
		return errors.Wrap(err, "querying fee schedules")
	}
	return ctx.JSON(http.StatusOK, scheds)
}

func (api *feesApi) activeSchedule(ctx echo.Context) error {
	var key fees.ScheduleKey
	if err := ctx.Bind(&key); err != nil {
		return errors.Wrap(err, "binding to ScheduleKey")
	}

	sched, err := api.svc.GetActiveFeeSchedule(ctx.Request().Context(), key)
	if err != nil {
		return errors.Wrap(err, "getting active fee schedule")
	}
	return ctx.JSON(http.StatusOK, sched)
}

func (api *feesApi) setSchedule(ctx echo.Context) error {
	var data fees.NewFeeSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeeSchedule")
	}

	sched, err := api.svc.SetFeeSchedule(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "setting fee schedule")
	}
	return ctx.JSON(http.StatusOK, sched)
}
