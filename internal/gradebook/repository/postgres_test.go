package repository

import (
	"context"
	"reflect"
	"testing"

	"github.com/noahsadir/courseman/internal/db"
	"github.com/noahsadir/courseman/internal/gradebook/domain"
	"github.com/noahsadir/courseman/internal/identifier"
	"github.com/noahsadir/courseman/internal/testutil/pgtest"
)

func exec(t *testing.T, q db.Querier, query string) {
	t.Helper()
	if _, err := q.ExecContext(context.Background(), query); err != nil {
		t.Fatalf("fixture: %v", err)
	}
}

func createClass(t *testing.T, repo *PostgresRepository, c *domain.Class) {
	t.Helper()
	if err := repo.CreateClass(context.Background(), c); err != nil {
		t.Fatalf("CreateClass(%s): %v", c.ID, err)
	}
}

func TestPostgresRepository_ClassRoundTrip(t *testing.T) {
	tx := pgtest.Tx(t)
	ctx := context.Background()
	repo := NewPostgresRepository(tx)

	if got, err := repo.GetClass(ctx, "missing"); err != nil || got != nil {
		t.Fatalf("GetClass(missing) = %+v, %v; want nil, nil", got, err)
	}

	class := &domain.Class{ID: "class-1", Name: "Algebra", Code: "MATH 101", Color: 255, Weight: 3.5}
	createClass(t, repo, class)
	exec(t, tx, `
		INSERT INTO grade_scales (class_id, grade_id, min_score, max_score, credit) VALUES
		('class-1', 'B', 80, 90, 3), ('class-1', 'A', 90, 100, 4)`)
	exec(t, tx, `
		INSERT INTO categories (category_id, class_id, category_name, drop_count, weight) VALUES
		('cat-2', 'class-1', 'Quizzes', 1, 0.25), ('cat-1', 'class-1', 'Exams', 0, 0.75)`)

	got, err := repo.GetClass(ctx, "class-1")
	if err != nil {
		t.Fatalf("GetClass: %v", err)
	}
	if !reflect.DeepEqual(got, class) {
		t.Errorf("GetClass = %+v, want %+v", got, class)
	}

	bands, err := repo.ListGradeScale(ctx, "class-1")
	if err != nil {
		t.Fatalf("ListGradeScale: %v", err)
	}
	if len(bands) != 2 || bands[0].GradeID != "A" {
		t.Errorf("ListGradeScale = %+v, want A first", bands)
	}

	cats, err := repo.ListCategories(ctx, "class-1")
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != 2 || cats[0].Name != "Exams" || cats[1].DropCount != 1 {
		t.Errorf("ListCategories = %+v, want Exams then Quizzes", cats)
	}

	class.Name = "Linear Algebra"
	if ok, err := repo.UpdateClass(ctx, class); err != nil || !ok {
		t.Errorf("UpdateClass(existing) = %v, %v; want true", ok, err)
	}
	if ok, err := repo.UpdateClass(ctx, &domain.Class{ID: "missing", Name: "x"}); err != nil || ok {
		t.Errorf("UpdateClass(missing) = %v, %v; want false", ok, err)
	}
}

func TestPostgresRepository_DuplicateClassIDIsUniqueViolation(t *testing.T) {
	tx := pgtest.Tx(t)
	repo := NewPostgresRepository(tx)

	createClass(t, repo, &domain.Class{ID: "class-1", Name: "A"})
	err := repo.CreateClass(context.Background(), &domain.Class{ID: "class-1", Name: "B"})
	if !db.IsUniqueViolation(err, identifier.ClassIDs.Constraint) {
		t.Errorf("err = %v, want unique violation on %s", err, identifier.ClassIDs.Constraint)
	}
}

func TestPostgresRepository_DeleteTermIsAccountScoped(t *testing.T) {
	tx := pgtest.Tx(t)
	ctx := context.Background()
	pgtest.Account(t, tx, "owner")
	pgtest.Account(t, tx, "other")
	repo := NewPostgresRepository(tx)

	if err := repo.CreateTerm(ctx, &domain.Term{ID: "term-1", AccountID: "owner", Title: "Fall", StartDate: 1, EndDate: 2}); err != nil {
		t.Fatalf("CreateTerm: %v", err)
	}
	if deleted, err := repo.DeleteTerm(ctx, "term-1", "other"); err != nil || deleted {
		t.Errorf("DeleteTerm by other = %v, %v; want false", deleted, err)
	}
	if deleted, err := repo.DeleteTerm(ctx, "term-1", "owner"); err != nil || !deleted {
		t.Errorf("DeleteTerm by owner = %v, %v; want true", deleted, err)
	}
}

func TestPostgresRepository_LockClass(t *testing.T) {
	tx := pgtest.Tx(t)
	ctx := context.Background()
	repo := NewPostgresRepository(tx)
	createClass(t, repo, &domain.Class{ID: "class-1", Name: "A"})

	if ok, err := repo.LockClass(ctx, "class-1"); err != nil || !ok {
		t.Errorf("LockClass(class-1) = %v, %v; want true", ok, err)
	}
	if ok, err := repo.LockClass(ctx, "missing"); err != nil || ok {
		t.Errorf("LockClass(missing) = %v, %v; want false", ok, err)
	}
}
