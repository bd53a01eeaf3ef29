package core

import "sweepcore/pkg/domain"

type (
	EntityType          = domain.EntityType
	RunStatus           = domain.RunStatus
	Severity            = domain.Severity
	Base                = domain.Base
	SweepPlan           = domain.SweepPlan
	MeasurementRun      = domain.MeasurementRun
	MeasurementVariable = domain.MeasurementVariable
	Registry            = domain.Registry
	Format              = domain.Format
	SeriesNode          = domain.SeriesNode
	SeriesLevel         = domain.SeriesLevel
	StartValues         = domain.StartValues
	Change              = domain.Change
	Action              = domain.Action
	Violation           = domain.Violation
	Result              = domain.Result
	Rule                = domain.Rule
	RuleViolationError  = domain.RuleViolationError
)

const (
	EntitySweepPlan      = domain.EntitySweepPlan
	EntityMeasurementRun = domain.EntityMeasurementRun
)

const (
	RunStatusPending   = domain.RunStatusPending
	RunStatusRunning   = domain.RunStatusRunning
	RunStatusCompleted = domain.RunStatusCompleted
	RunStatusAborted   = domain.RunStatusAborted
	RunStatusFailed    = domain.RunStatusFailed
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

const (
	FormatDecimal = domain.FormatDecimal
	FormatHex     = domain.FormatHex
)
