package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"stealthcompany.com/mooshu/internal/dal/memory"
	"stealthcompany.com/mooshu/internal/patient"
)

type HandlerSuite struct {
	suite.Suite
	router  http.Handler
	pingErr error
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.pingErr = nil
	svc := patient.NewService(memory.New())
	h := NewHandler(svc, func(context.Context) error { return s.pingErr })
	s.router = SetupRoutes(h, []string{"*"})
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *HandlerSuite) create(body string) string {
	rr := s.do(http.MethodPost, "/patients", body)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())

	var resp CreatedResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	s.Require().Equal(MsgPatientAdded, resp.Message)
	s.Require().NotEmpty(resp.ID)
	return resp.ID
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

const johnDoe = `{"firstName":"John","lastName":"Doe","dateOfBirth":"1990-01-01","gender":"Male","contactNumber":"5551234","medicalId":"JD1990"}`

func (s *HandlerSuite) TestCreatePatient() {
	id := s.create(johnDoe)

	rr := s.do(http.MethodGet, "/patients/"+id, "")
	s.Require().Equal(http.StatusOK, rr.Code)

	var p patient.Patient
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &p))
	s.Equal(id, p.ID)
	s.Equal("John", p.FirstName)
	s.Equal("JD1990", p.MedicalID)
	s.Equal(int64(1), p.Version)
	s.Contains(rr.Body.String(), `"records":[]`)
}

func (s *HandlerSuite) TestCreatePatient_Duplicate() {
	s.create(johnDoe)

	rr := s.do(http.MethodPost, "/patients", `{"firstName":"Jane","lastName":"Roe","medicalId":"JD1990"}`)
	s.Equal(http.StatusBadRequest, rr.Code)
	resp := decodeError(s.T(), rr)
	s.Equal(ErrKindDuplicateMedicalID, resp.Error)
	s.Equal("Patient already added", resp.Message)
}

func (s *HandlerSuite) TestCreatePatient_Rejected() {
	tests := []struct {
		name     string
		body     string
		wantKind string
	}{
		{"malformed json", `{"firstName":`, ErrKindInvalidJSON},
		{"missing first name", `{"lastName":"Doe","medicalId":"X1"}`, ErrKindValidationFailed},
		{"missing medical id", `{"firstName":"John","lastName":"Doe"}`, ErrKindValidationFailed},
		{"future birth date", `{"firstName":"John","lastName":"Doe","medicalId":"X1","dateOfBirth":"2999-01-01"}`, ErrKindValidationFailed},
		{"letters in contact number", `{"firstName":"John","lastName":"Doe","medicalId":"X1","contactNumber":"555-abc"}`, ErrKindValidationFailed},
		{"oversized medical id", `{"firstName":"John","lastName":"Doe","medicalId":"` + strings.Repeat("x", 40000) + `"}`, ErrKindValidationFailed},
		{"NUL in last name", `{"firstName":"John","lastName":"Do\u0000e","medicalId":"X1"}`, ErrKindValidationFailed},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			rr := s.do(http.MethodPost, "/patients", tt.body)
			s.Equal(http.StatusBadRequest, rr.Code)
			s.Equal(tt.wantKind, decodeError(s.T(), rr).Error)
		})
	}
}

func (s *HandlerSuite) TestCreatePatient_NormalizesRecords() {
	id := s.create(`{"firstName":"Ann","lastName":"Lee","medicalId":"AL1","records":[{"diagnosis":"Flu","admitted":false,"admittedDays":4,"testsDone":false,"testsDetails":"x"}]}`)

	rr := s.do(http.MethodGet, "/patients/"+id, "")
	var p patient.Patient
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &p))
	s.Require().Len(p.Records, 1)
	s.Equal(0, p.Records[0].AdmittedDays)
	s.Empty(p.Records[0].TestsDetails)
}

func (s *HandlerSuite) TestListPatients() {
	s.create(johnDoe)
	s.create(`{"firstName":"Alice","lastName":"Smith","gender":"Female","medicalId":"AS2000","critical":true}`)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"JD1990", "AS2000"}},
		{"?search=jd", []string{"JD1990"}},
		{"?search=SMITH", []string{"AS2000"}},
		{"?search=xyz", []string{}},
		{"?search=%20%20", []string{"JD1990", "AS2000"}},
		{"?search=jd%20", []string{}},
		{"?critical=true", []string{"AS2000"}},
		{"?search=doe&critical=true", []string{}},
	}

	for _, tt := range tests {
		s.Run(tt.query, func() {
			rr := s.do(http.MethodGet, "/patients"+tt.query, "")
			s.Require().Equal(http.StatusOK, rr.Code)

			var got []patient.Patient
			s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &got))
			ids := make([]string, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.MedicalID)
			}
			s.Equal(tt.want, ids)
		})
	}
}

func (s *HandlerSuite) TestListPatients_EmptyIsArray() {
	rr := s.do(http.MethodGet, "/patients", "")
	s.Equal(http.StatusOK, rr.Code)
	s.Equal("[]", strings.TrimSpace(rr.Body.String()))
}

func (s *HandlerSuite) TestListPatients_BadCriticalFlag() {
	rr := s.do(http.MethodGet, "/patients?critical=maybe", "")
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal(ErrKindValidationFailed, decodeError(s.T(), rr).Error)
}

func (s *HandlerSuite) TestGetPatient_NotFound() {
	rr := s.do(http.MethodGet, "/patients/does-not-exist", "")
	s.Equal(http.StatusNotFound, rr.Code)
	s.Equal(ErrKindNotFound, decodeError(s.T(), rr).Error)
}

func (s *HandlerSuite) TestAddRecord() {
	id := s.create(johnDoe)

	rr := s.do(http.MethodPost, "/patients/"+id+"/record",
		`{"diagnosis":"Flu","admitted":false,"admittedDays":5,"discharged":true,"dateDischarged":"2024-01-01","medication":"Rest"}`)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.JSONEq(`{"message":"Record added successfully"}`, rr.Body.String())

	rr = s.do(http.MethodPost, "/patients/"+id+"/record",
		`{"diagnosis":"Fracture","admitted":true,"admittedDays":3,"testsDone":true,"testsDetails":"X-ray"}`)
	s.Require().Equal(http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/patients/"+id, "")
	var p patient.Patient
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &p))
	s.Require().Len(p.Records, 2)
	s.Equal(patient.Record{Diagnosis: "Flu", Medication: "Rest"}, p.Records[0])
	s.Equal("Fracture", p.Records[1].Diagnosis)
	s.Equal(3, p.Records[1].AdmittedDays)
	s.Equal("X-ray", p.Records[1].TestsDetails)
}

func (s *HandlerSuite) TestAddRecord_Rejected() {
	id := s.create(johnDoe)

	rr := s.do(http.MethodPost, "/patients/unknown/record", `{"diagnosis":"Flu"}`)
	s.Equal(http.StatusNotFound, rr.Code)

	rr = s.do(http.MethodPost, "/patients/"+id+"/record", `{"admitted":true,"admittedDays":-1}`)
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal(ErrKindValidationFailed, decodeError(s.T(), rr).Error)

	rr = s.do(http.MethodPost, "/patients/"+id+"/record", `not json`)
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal(ErrKindInvalidJSON, decodeError(s.T(), rr).Error)
}

func (s *HandlerSuite) TestUpdatePatient_MergesAndIgnoresRecords() {
	id := s.create(johnDoe)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/patients/"+id+"/record", `{"diagnosis":"Flu"}`).Code)

	rr := s.do(http.MethodPut, "/patients/"+id, `{"firstName":"Johnny","critical":true,"records":[]}`)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	var p patient.Patient
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &p))
	s.Equal("Johnny", p.FirstName)
	s.Equal("Doe", p.LastName)
	s.Equal("JD1990", p.MedicalID)
	s.True(p.Critical)
	s.Equal(int64(2), p.Version)
	s.Len(p.Records, 1)
}

func (s *HandlerSuite) TestUpdatePatient_Failures() {
	id := s.create(johnDoe)
	s.create(`{"firstName":"Alice","lastName":"Smith","medicalId":"AS2000"}`)

	rr := s.do(http.MethodPut, "/patients/"+id, `{"firstName":"J","version":7}`)
	s.Equal(http.StatusConflict, rr.Code)
	s.Equal(ErrKindVersionConflict, decodeError(s.T(), rr).Error)

	rr = s.do(http.MethodPut, "/patients/"+id, `{"medicalId":"AS2000"}`)
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal(ErrKindDuplicateMedicalID, decodeError(s.T(), rr).Error)

	rr = s.do(http.MethodPut, "/patients/"+id, `{"lastName":"  "}`)
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal(ErrKindValidationFailed, decodeError(s.T(), rr).Error)

	rr = s.do(http.MethodPut, "/patients/unknown", `{"firstName":"J"}`)
	s.Equal(http.StatusNotFound, rr.Code)

	rr = s.do(http.MethodPut, "/patients/"+id, `[`)
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *HandlerSuite) TestDeletePatient() {
	id := s.create(johnDoe)

	rr := s.do(http.MethodDelete, "/patients/"+id, "")
	s.Require().Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"message":"Patient deleted successfully"}`, rr.Body.String())

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/patients/"+id, "").Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/patients/"+id, "").Code)

	// the medical id is free again
	s.create(johnDoe)
}

func (s *HandlerSuite) TestSummary() {
	s.create(johnDoe)
	s.create(`{"firstName":"Alice","lastName":"Smith","gender":"Female","medicalId":"AS2000","critical":true}`)
	s.create(`{"firstName":"Sam","lastName":"Lee","gender":"Other","medicalId":"SL1"}`)

	rr := s.do(http.MethodGet, "/analytics/summary", "")
	s.Require().Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"total":3,"critical":1,"male":1,"female":1}`, rr.Body.String())

	rr = s.do(http.MethodGet, "/analytics/summary?critical=true", "")
	s.Require().Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"total":1,"critical":1,"male":0,"female":1}`, rr.Body.String())
}

func (s *HandlerSuite) TestHealth() {
	rr := s.do(http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"status":"ok"}`, rr.Body.String())

	s.pingErr = errors.New("connection refused")
	rr = s.do(http.MethodGet, "/health", "")
	s.Equal(http.StatusServiceUnavailable, rr.Code)
	s.JSONEq(`{"status":"unavailable"}`, rr.Body.String())
}

func (s *HandlerSuite) TestMetricsEndpoint() {
	s.do(http.MethodGet, "/patients", "")

	rr := s.do(http.MethodGet, "/metrics", "")
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "http_requests_total")
	s.Contains(rr.Body.String(), "patient_operations_total")
}

func (s *HandlerSuite) TestCORSPreflight() {
	req := httptest.NewRequest(http.MethodOptions, "/patients", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rr := httptest.NewRecorder()

	s.router.ServeHTTP(rr, req)

	s.Equal(http.StatusOK, rr.Code)
	s.NotEmpty(rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/patients?search=Doe&critical=1", nil)
	q, err := parseQuery(req)
	require.NoError(t, err)
	assert.Equal(t, patient.Query{Search: "Doe", CriticalOnly: true}, q)

	_, err = parseQuery(httptest.NewRequest(http.MethodGet, "/patients?critical=yes", nil))
	require.ErrorIs(t, err, patient.ErrInvalid)
}
