// Package core provides the farmer onboarding workflow engine.
//
// This package holds all domain logic independent of any transport. It is
// used by the REST server, the onboardctl CLI and tests without modification.
//
// # Architecture
//
//   - Workflow: a [WorkflowDefinition] lists the ordered stages with their
//     dependencies. [DefaultWorkflow] is registration, documentation,
//     training, verification, activation.
//   - Service: the only writer of records. Every mutation is serialized,
//     persisted through a [Store] and then clears the [QueryCache].
//   - Import and export: a fixed CSV layout ([RecordColumns]) read by
//     [Service.ImportRecords] and written by [Service.ExportRecords].
//   - Messaging: a [Dispatcher] renders [MessageTemplate]s and hands them to
//     a [DeliveryChannel].
//
// # Stages and Status
//
// Stage and status are independent. Advancing a record never changes its
// status, and status changes never move the stage, with one exception:
// completed is only legal at the final stage.
//
//	r, _ := svc.CreateRecord(ctx, core.CreateRecordRequest{Subject: &sub, AssignedPartner: "p1"})
//	r, _ = svc.AdvanceStage(ctx, r.ID, core.StageDocumentation, "ID card received")
//	p, _ := svc.ComputeProgress(ctx, r.ID) // p.OverallProgress == 40
//
// # Errors
//
// Errors are classified by kind ([ErrValidation], [ErrNotFound],
// [ErrIllegalTransition], [ErrMissingVariable]) and tested with errors.Is.
// [MapError] turns any error into a [UserMessage] with a support code.
package core
