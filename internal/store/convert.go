package store

import (
	"vergabeflow/internal/export"
	"vergabeflow/internal/wizard"
)

// FromState converts a wizard snapshot to a storable Analysis.
func FromState(st wizard.State) Analysis {
	return Analysis{
		ID:               st.AnalysisID,
		Stage:            st.Stage.String(),
		ProcurementType:  st.ProcurementType,
		Description:      st.Description,
		Questions:        st.Questions,
		Answers:          st.Answers,
		FinalDescription: st.FinalDescription,
		UpdatedAt:        st.UpdatedAt,
	}
}

// Report builds the export content for a.
func (a Analysis) Report() export.Report {
	r := export.NewReport(a.ProcurementType, a.Description, a.Questions, a.Answers, a.FinalDescription)
	r.AnalysisID = a.ID
	r.CreatedAt = a.UpdatedAt
	return r
}
