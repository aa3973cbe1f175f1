package tenant

import (
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Scoped marks models that carry a tenant_id column. Every query, update,
// delete and insert against a Scoped model is constrained to the ambient
// tenant by the callbacks below, whether or not the call site remembered to
// filter. This is the query-layer equivalent of database row level security.
type Scoped interface {
	TenantScoped()
}

// RegisterCallbacks installs the tenant row filter on a gorm session. Must
// be called once on the root *gorm.DB before any repository uses it.
func RegisterCallbacks(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant:scope_query", scopeQuery); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant:scope_row", scopeQuery); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant:scope_update", scopeUpdate); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant:scope_delete", scopeQuery); err != nil {
		return err
	}
	if err := db.Callback().Create().Before("gorm:create").Register("tenant:stamp_create", stampCreate); err != nil {
		return err
	}
	return nil
}

func scopedField(db *gorm.DB) *schema.Field {
	sch := db.Statement.Schema
	if sch == nil {
		return nil
	}
	if _, ok := reflect.New(sch.ModelType).Interface().(Scoped); !ok {
		return nil
	}
	return sch.LookUpField("TenantID")
}

// scopeQuery appends `tenant_id = <ambient>` to reads and deletes of scoped
// models. Missing ambient tenant fails the statement, not just the filter.
func scopeQuery(db *gorm.DB) {
	if scopedField(db) == nil {
		return
	}
	ctx := db.Statement.Context
	if IsSystem(ctx) {
		return
	}
	id, ok := IDFromContext(ctx)
	if !ok {
		db.AddError(ErrNoAmbientTenant)
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: "tenant_id"},
			Value:  id,
		},
	}})
}

// scopeUpdate filters the affected rows like a read and additionally rejects
// payloads that try to move a row to another tenant.
func scopeUpdate(db *gorm.DB) {
	field := scopedField(db)
	if field == nil {
		return
	}
	ctx := db.Statement.Context
	if IsSystem(ctx) {
		return
	}
	id, ok := IDFromContext(ctx)
	if !ok {
		db.AddError(ErrNoAmbientTenant)
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: "tenant_id"},
			Value:  id,
		},
	}})

	switch dest := db.Statement.Dest.(type) {
	case map[string]interface{}:
		if v, present := dest["tenant_id"]; present {
			if tid, numeric := toInt64(v); !numeric || tid != id {
				db.AddError(ErrTenantMismatch)
			}
		}
	default:
		rv := reflect.ValueOf(db.Statement.Dest)
		for rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct {
			return
		}
		if v, zero := field.ValueOf(ctx, rv); !zero {
			if tid, numeric := toInt64(v); numeric && tid != id {
				db.AddError(ErrTenantMismatch)
			}
		}
	}
}

// stampCreate stamps inserts with the ambient tenant and rejects rows that
// arrive pre-stamped with a foreign one.
func stampCreate(db *gorm.DB) {
	field := scopedField(db)
	if field == nil {
		return
	}
	ctx := db.Statement.Context
	if IsSystem(ctx) {
		return
	}
	id, ok := IDFromContext(ctx)
	if !ok {
		db.AddError(ErrNoAmbientTenant)
		return
	}

	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			stampOne(db, field, reflect.Indirect(rv.Index(i)), id)
		}
	case reflect.Struct:
		stampOne(db, field, rv, id)
	}
}

func stampOne(db *gorm.DB, field *schema.Field, rv reflect.Value, id int64) {
	ctx := db.Statement.Context
	v, zero := field.ValueOf(ctx, rv)
	if zero {
		if err := field.Set(ctx, rv, id); err != nil {
			db.AddError(err)
		}
		return
	}
	if tid, numeric := toInt64(v); !numeric || tid != id {
		db.AddError(ErrTenantMismatch)
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
