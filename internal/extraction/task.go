package extraction

import "github.com/fjsoftlab/cvextract/internal/storage"

// Task identifies one extraction pipeline.
type Task int

const (
	TaskIndividualData Task = iota + 1
	TaskFormations
	TaskParcoursPro
	TaskAutresExperiences
	TaskRealisations
	TaskAnalysis
)

// Tasks lists every task in display order.
func Tasks() []Task {
	return []Task{
		TaskIndividualData,
		TaskFormations,
		TaskParcoursPro,
		TaskAutresExperiences,
		TaskRealisations,
		TaskAnalysis,
	}
}

// Key is the wire name of the task, shared with the frontend and used as the
// prompt name.
func (t Task) Key() string {
	switch t {
	case TaskIndividualData:
		return "extract-individual-data"
	case TaskFormations:
		return "extract-formations"
	case TaskParcoursPro:
		return "extract-parcours-professionnel"
	case TaskAutresExperiences:
		return "extract-autres-experiences"
	case TaskRealisations:
		return "extract-realisations"
	case TaskAnalysis:
		return "openai-assistant"
	}
	return ""
}

func (t Task) String() string {
	if k := t.Key(); k != "" {
		return k
	}
	return "unknown"
}

// ParseTask maps a wire key back to its task.
func ParseTask(key string) (Task, bool) {
	for _, t := range Tasks() {
		if t.Key() == key {
			return t, true
		}
	}
	return 0, false
}

// Column is the profile column the task result is written to.
func (t Task) Column() storage.ProfileColumn {
	switch t {
	case TaskIndividualData:
		return storage.ColumnIndividualData
	case TaskFormations:
		return storage.ColumnFormations
	case TaskParcoursPro:
		return storage.ColumnParcours
	case TaskAutresExperiences:
		return storage.ColumnAutresExperiences
	case TaskRealisations:
		return storage.ColumnRealisations
	case TaskAnalysis:
		return storage.ColumnAnalysis
	}
	return ""
}

type fetchMode int

const (
	fetchByIDs fetchMode = iota
	fetchByOwner
)

func (t Task) fetchMode() fetchMode {
	switch t {
	case TaskAutresExperiences, TaskRealisations:
		return fetchByOwner
	}
	return fetchByIDs
}

type combineStyle int

const (
	styleBanner combineStyle = iota
	styleOwner
	styleAnalysis
)

func (t Task) combineStyle() combineStyle {
	switch t {
	case TaskAutresExperiences, TaskRealisations:
		return styleOwner
	case TaskAnalysis:
		return styleAnalysis
	}
	return styleBanner
}

// needsUser reports whether the request must carry a userId. Formations and
// career history derive the owner from the documents instead.
func (t Task) needsUser() bool {
	switch t {
	case TaskFormations, TaskParcoursPro:
		return false
	}
	return true
}

func (t Task) needsDocuments() bool {
	return t.fetchMode() == fetchByIDs
}
