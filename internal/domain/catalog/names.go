// Package catalog defines the static registry of triggerable jobs, their period parameters
// and the dependency graph between them.
package catalog

import (
	"strings"
)

// JobName identifies a catalog entry. The set of names is closed; see the constants below.
type JobName string

const (
	ConfigActivation             JobName = "CONFIG_ACTIVATION"
	SalaryStructureActivation    JobName = "SALARY_STRUCTURE_ACTIVATION"
	DailyAttendanceEntry         JobName = "DAILY_ATTENDANCE_ENTRY"
	AttendanceAutoApproval       JobName = "ATTENDANCE_AUTO_APPROVAL"
	LeaveAccrual                 JobName = "LEAVE_ACCRUAL"
	MonthlyPayrollGeneration     JobName = "MONTHLY_PAYROLL_GENERATION"
	YearlyLeaveCarryForward      JobName = "YEARLY_LEAVE_CARRY_FORWARD"
	LeaveBalanceReset            JobName = "LEAVE_BALANCE_RESET"
	DocumentExpiryAlerts         JobName = "DOCUMENT_EXPIRY_ALERTS"
	VehicleInsuranceExpiryAlerts JobName = "VEHICLE_INSURANCE_EXPIRY_ALERTS"
	AssetWarrantyAlerts          JobName = "ASSET_WARRANTY_ALERTS"

	MidnightJobs JobName = "MIDNIGHT_JOBS"
	MonthlyJobs  JobName = "MONTHLY_JOBS"
	YearlyJobs   JobName = "YEARLY_JOBS"
	ExpiryAlerts JobName = "EXPIRY_ALERTS"
)

// ManualPrefix marks job log entries created by a manual trigger.
const ManualPrefix = "MANUAL_"

// String returns the canonical name.
func (n JobName) String() string { return string(n) }

// ManualName returns the name under which manual runs of n are recorded.
func (n JobName) ManualName() string { return ManualPrefix + string(n) }

// RunNames returns both log names (scheduled and manual) that count as runs of n.
func (n JobName) RunNames() []string {
	return []string{string(n), n.ManualName()}
}

// LogName returns the log name for a run of n, given whether it was manually triggered.
func (n JobName) LogName(manual bool) string {
	if manual {
		return n.ManualName()
	}
	return string(n)
}

// normalizeName uppercases s, trims whitespace and strips the manual prefix.
func normalizeName(s string) JobName {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, ManualPrefix)
	return JobName(v)
}

// JobType is a coarse category tag used for reporting.
type JobType string

const (
	TypeConfiguration JobType = "configuration"
	TypeAttendance    JobType = "attendance"
	TypeLeave         JobType = "leave"
	TypePayroll       JobType = "payroll"
	TypeAlerts        JobType = "alerts"
	TypeGroup         JobType = "group"
)

// ParamKind describes the period parameters a job requires.
type ParamKind string

const (
	ParamsNone      ParamKind = "none"
	ParamsDate      ParamKind = "date"
	ParamsMonthYear ParamKind = "month+year"
	ParamsYear      ParamKind = "year"
)

// Fields lists the request fields required by the kind.
func (k ParamKind) Fields() []string {
	switch k {
	case ParamsDate:
		return []string{"date"}
	case ParamsMonthYear:
		return []string{"month", "year"}
	case ParamsYear:
		return []string{"year"}
	case ParamsNone:
		return []string{}
	}
	return []string{}
}
