package facts

import (
	"github.com/naka-gawa/github-facts/internal/domain"
)

// ProjectFacts counts the items of a Project (v2) board.
type ProjectFacts struct {
	Items        int
	ByType       map[string]int
	ByRepository map[string]int
	ByState      map[string]int
	// ByFieldOption counts single-select options per field name.
	ByFieldOption map[string]map[string]int
	// ByUser counts items per login across user fields.
	ByUser map[string]int
	// FieldsSet counts items that carry a value for each text, date or repository field.
	FieldsSet map[string]int
}

// CollectProjectFacts computes the item counts of p.
func CollectProjectFacts(p *domain.Project) ProjectFacts {
	f := ProjectFacts{
		ByType:        map[string]int{},
		ByRepository:  map[string]int{},
		ByState:       map[string]int{},
		ByFieldOption: map[string]map[string]int{},
		ByUser:        map[string]int{},
		FieldsSet:     map[string]int{},
	}
	if p == nil {
		return f
	}
	f.Items = len(p.Items)
	for _, item := range p.Items {
		f.ByType[item.ContentType]++
		if item.Repository != "" {
			f.ByRepository[item.Repository]++
		}
		if item.State != "" {
			f.ByState[item.State]++
		}
		for _, fv := range item.FieldValues {
			switch v := fv.(type) {
			case domain.SingleSelectValue:
				options, ok := f.ByFieldOption[v.Field]
				if !ok {
					options = map[string]int{}
					f.ByFieldOption[v.Field] = options
				}
				options[v.Option]++
			case domain.UserValue:
				for _, login := range v.Logins {
					f.ByUser[login]++
				}
			case domain.TextValue, domain.DateValue, domain.RepositoryValue:
				f.FieldsSet[v.FieldName()]++
			}
		}
	}
	return f
}
