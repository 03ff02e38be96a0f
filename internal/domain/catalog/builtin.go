package catalog

// Builtin returns the definitions of the jobs this service runs.
func Builtin() []Definition {
	return []Definition{
		{
			Name:        ConfigActivation,
			Description: "Activate configuration versions whose effective date has been reached",
			Type:        TypeConfiguration,
			Params:      ParamsNone,
		},
		{
			Name:         SalaryStructureActivation,
			Description:  "Activate employee salary structures whose effective date has been reached",
			Type:         TypePayroll,
			Params:       ParamsNone,
			Dependencies: []JobName{ConfigActivation},
		},
		{
			Name:         DailyAttendanceEntry,
			Description:  "Create attendance entries for every active employee for the given date",
			Type:         TypeAttendance,
			Params:       ParamsDate,
			Dependencies: []JobName{ConfigActivation},
		},
		{
			Name:         AttendanceAutoApproval,
			Description:  "Auto-approve pending attendance entries for the given date",
			Type:         TypeAttendance,
			Params:       ParamsDate,
			Dependencies: []JobName{DailyAttendanceEntry},
		},
		{
			Name:        LeaveAccrual,
			Description: "Accrue monthly leave balances for the given month",
			Type:        TypeLeave,
			Params:      ParamsMonthYear,
		},
		{
			Name:         MonthlyPayrollGeneration,
			Description:  "Generate payroll for the given month",
			Type:         TypePayroll,
			Params:       ParamsMonthYear,
			Dependencies: []JobName{LeaveAccrual},
		},
		{
			Name:        YearlyLeaveCarryForward,
			Description: "Carry unused leave forward from the given year",
			Type:        TypeLeave,
			Params:      ParamsYear,
		},
		{
			Name:         LeaveBalanceReset,
			Description:  "Reset non carry-forward leave balances after the given year",
			Type:         TypeLeave,
			Params:       ParamsYear,
			Dependencies: []JobName{YearlyLeaveCarryForward},
		},
		{
			Name:        DocumentExpiryAlerts,
			Description: "Notify owners of employee documents that are about to expire",
			Type:        TypeAlerts,
			Params:      ParamsNone,
		},
		{
			Name:        VehicleInsuranceExpiryAlerts,
			Description: "Notify fleet managers of vehicle insurance policies that are about to expire",
			Type:        TypeAlerts,
			Params:      ParamsNone,
		},
		{
			Name:        AssetWarrantyAlerts,
			Description: "Notify asset managers of warranties that are about to expire",
			Type:        TypeAlerts,
			Params:      ParamsNone,
		},
		{
			Name:        MidnightJobs,
			Description: "Nightly pipeline: activations, then attendance entry and approval for the previous day",
			Type:        TypeGroup,
			Params:      ParamsNone,
			Schedule:    "0 0 * * *",
			Members: []Member{
				{Name: ConfigActivation},
				{Name: SalaryStructureActivation},
				{Name: DailyAttendanceEntry, Period: PeriodYesterday},
				{Name: AttendanceAutoApproval, Period: PeriodYesterday},
			},
		},
		{
			Name:        MonthlyJobs,
			Description: "Monthly pipeline for the previous month: leave accrual, then payroll generation",
			Type:        TypeGroup,
			Params:      ParamsNone,
			Schedule:    "0 1 1 * *",
			Guard:       GuardFirstOfMonth,
			Members: []Member{
				{Name: LeaveAccrual, Period: PeriodPreviousMonth},
				{Name: MonthlyPayrollGeneration, Period: PeriodPreviousMonth},
			},
		},
		{
			Name:        YearlyJobs,
			Description: "Yearly pipeline for the previous year: leave carry forward, then balance reset",
			Type:        TypeGroup,
			Params:      ParamsNone,
			Schedule:    "0 2 1 1 *",
			Guard:       GuardFirstOfYear,
			Members: []Member{
				{Name: YearlyLeaveCarryForward, Period: PeriodPreviousYear},
				{Name: LeaveBalanceReset, Period: PeriodPreviousYear},
			},
		},
		{
			Name:        ExpiryAlerts,
			Description: "Daily pipeline running every expiry notification job",
			Type:        TypeGroup,
			Params:      ParamsNone,
			Schedule:    "0 9 * * *",
			Members: []Member{
				{Name: DocumentExpiryAlerts},
				{Name: VehicleInsuranceExpiryAlerts},
				{Name: AssetWarrantyAlerts},
			},
		},
	}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return MustNew(Builtin())
}
