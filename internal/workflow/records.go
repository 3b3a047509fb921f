package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// UpdateRecord applies a partial update to any workflow entity. Only fields
// on the entity's mutable allow-list go through; status columns and running
// totals are rejected like any other unknown field.
func (s *Service) UpdateRecord(ctx context.Context, actor shared.Actor, entityName string, id uuid.UUID, fields map[string]any) (Result, error) {
	if len(fields) == 0 {
		return Result{}, shared.NewValidationError("fields", "nothing to update")
	}
	schema, err := s.schemas.Entity(ctx, entityName)
	if err != nil {
		return Result{}, err
	}
	record, err := s.loadRecord(ctx, actor, entityName, id, false)
	if err != nil {
		return Result{}, err
	}
	if err := s.allow(ctx, actor, entityName, shared.ActionUpdate, record); err != nil {
		return Result{}, err
	}

	allowed := make(map[string]bool)
	for _, name := range s.cfg.MutableFields[entityName] {
		allowed[name] = true
	}

	columns := make(map[string]any, len(fields))
	for name, value := range fields {
		if !allowed[name] {
			return Result{}, shared.NewValidationError(name, "field is not updatable")
		}
		field, ok := schema.Field(name)
		if !ok {
			return Result{}, shared.NewValidationError(name, "unknown field")
		}
		columns[field.Column] = value
	}

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		updated, err := tx.UpdateFields(ctx, schema.Entity.Table, schema.Entity.PrimaryKey, id, columns, time.Now())
		if err != nil {
			return err
		}
		if !updated {
			return &shared.NotFoundError{Entity: entityName, ID: id.String()}
		}
		result = success(id, "")
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.logAction(entityName+".update", id, actor)
	return result, nil
}

// SoftDeleteRecord hides a record from default listings. The row stays put;
// restore brings it back.
func (s *Service) SoftDeleteRecord(ctx context.Context, actor shared.Actor, entityName string, id uuid.UUID) (Result, error) {
	return s.setDeleted(ctx, actor, entityName, id, shared.ActionDelete, true)
}

// RestoreRecord reverses a soft delete.
func (s *Service) RestoreRecord(ctx context.Context, actor shared.Actor, entityName string, id uuid.UUID) (Result, error) {
	return s.setDeleted(ctx, actor, entityName, id, shared.ActionRestore, false)
}

func (s *Service) setDeleted(ctx context.Context, actor shared.Actor, entityName string, id uuid.UUID, action string, deleted bool) (Result, error) {
	schema, err := s.schemas.Entity(ctx, entityName)
	if err != nil {
		return Result{}, err
	}
	// Restore targets a row the default fetch cannot see.
	record, err := s.loadRecord(ctx, actor, entityName, id, !deleted)
	if err != nil {
		return Result{}, err
	}
	if err := s.allow(ctx, actor, entityName, action, record); err != nil {
		return Result{}, err
	}

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		updated, err := tx.SetDeleted(ctx, schema.Entity.Table, schema.Entity.PrimaryKey, id, deleted, time.Now())
		if err != nil {
			return err
		}
		if !updated {
			return &shared.NotFoundError{Entity: entityName, ID: id.String()}
		}
		result = success(id, "")
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.logAction(entityName+"."+action, id, actor)
	return result, nil
}

// loadRecord fetches the mutation target for the gate's row condition.
// Without a configured loader the gate runs with no row context.
func (s *Service) loadRecord(ctx context.Context, actor shared.Actor, entityName string, id uuid.UUID, anyState bool) (map[string]any, error) {
	if s.records == nil {
		return nil, nil
	}
	if anyState {
		return s.records.FetchRecordAnyState(ctx, actor, entityName, id.String(), meta.ViewView)
	}
	return s.records.FetchRecord(ctx, actor, entityName, id.String(), meta.ViewView)
}
