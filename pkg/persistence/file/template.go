package file

import (
	"context"
	"path"
	"sort"

	"github.com/agridesk/agridesk/pkg/models"
)

// TemplateRepository reads the step template catalog from the file system.
// Templates are seeded by dropping JSON files into the templates directory.
type TemplateRepository struct {
	root string
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

func (tr *TemplateRepository) dir() string {
	return path.Join(tr.root, "templates")
}

// ListActive returns every stored template ordered by step number.
func (tr *TemplateRepository) ListActive(_ context.Context) ([]*models.StepTemplate, error) {
	ids, err := listIDs(tr.dir())
	if err != nil {
		return nil, err
	}

	templates := make([]*models.StepTemplate, 0, len(ids))

	for _, id := range ids {
		var template models.StepTemplate

		found, err := readEntity(tr.dir(), id, &template)
		if err != nil {
			return nil, err
		}

		if found {
			templates = append(templates, &template)
		}
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].StepNumber < templates[j].StepNumber
	})

	return templates, nil
}

// Save stores a template. Used by tests and seed tooling.
func (tr *TemplateRepository) Save(_ context.Context, template *models.StepTemplate) error {
	return writeEntity(tr.dir(), template.ID, template)
}
