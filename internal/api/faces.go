package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/watchnode/internal/api/models"
	"github.com/smazurov/watchnode/internal/storage"
)

// registerFaceRoutes registers known faces and the unknown person queue.
func (s *Server) registerFaceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-faces",
		Method:      http.MethodGet,
		Path:        "/api/faces",
		Summary:     "List Faces",
		Description: "Known people: reference images merged with sighting records",
		Tags:        []string{"faces"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.FaceListResponse, error) {
		faces, err := s.listFaces(ctx)
		if err != nil {
			return nil, s.mapError(err)
		}
		resp := &models.FaceListResponse{}
		resp.Body.Faces = faces
		resp.Body.Count = len(faces)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "add-face",
		Method:        http.MethodPost,
		Path:          "/api/faces",
		Summary:       "Add Face",
		Description:   "Store a reference JPEG for a person, replacing any existing one",
		Tags:          []string{"faces"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.AddFaceRequest) (*models.MessageResponse, error) {
		if err := s.app.Faces().Add(input.Body.Name, input.Body.Image); err != nil {
			return nil, s.mapError(err)
		}
		if err := s.app.DB().UpsertFace(ctx, input.Body.Name, input.Body.Category); err != nil {
			return nil, s.mapError(err)
		}
		s.logger.Info("Face added", "name", input.Body.Name)
		return &models.MessageResponse{Body: models.MessageData{Message: "face " + input.Body.Name + " saved"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-face-image",
		Method:      http.MethodGet,
		Path:        "/api/faces/{name}/image",
		Summary:     "Face Image",
		Tags:        []string{"faces"},
		Errors:      []int{400, 401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.FaceNameInput) (*models.ImageResponse, error) {
		data, err := s.app.Faces().Get(input.Name)
		if err != nil {
			return nil, s.mapError(err)
		}
		return models.NewImageResponse(data), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-face",
		Method:        http.MethodDelete,
		Path:          "/api/faces/{name}",
		Summary:       "Delete Face",
		Description:   "Remove a person's reference image and sighting record",
		Tags:          []string{"faces"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{400, 401, 404},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.FaceNameInput) (*struct{}, error) {
		// A person recognized only by name has a record but no image
		if err := s.app.Faces().Remove(input.Name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, s.mapError(err)
		}
		if err := s.app.DB().DeleteFace(ctx, input.Name); err != nil {
			return nil, s.mapError(err)
		}
		s.logger.Info("Face removed", "name", input.Name)
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-unknown-persons",
		Method:      http.MethodGet,
		Path:        "/api/unknown",
		Summary:     "List Unknown Persons",
		Description: "Unrecognized detections waiting to be labeled, newest first",
		Tags:        []string{"faces"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.UnknownListRequest) (*models.UnknownListResponse, error) {
		unknown, err := s.app.DB().ListUnknownPersons(ctx, input.Limit)
		if err != nil {
			return nil, s.mapError(err)
		}
		resp := &models.UnknownListResponse{}
		resp.Body.Unknown = unknown
		resp.Body.Count = len(unknown)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-unknown-image",
		Method:      http.MethodGet,
		Path:        "/api/unknown/{id}/image",
		Summary:     "Unknown Person Image",
		Tags:        []string{"faces"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.UnknownIDInput) (*models.ImageResponse, error) {
		data, _, err := s.unknownImage(ctx, input.ID)
		if err != nil {
			return nil, s.mapError(err)
		}
		return models.NewImageResponse(data), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "label-unknown-person",
		Method:      http.MethodPost,
		Path:        "/api/unknown/{id}/label",
		Summary:     "Label Unknown Person",
		Description: "Store the detection's image as the person's reference and remove it from the queue",
		Tags:        []string{"faces"},
		Errors:      []int{400, 401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.LabelUnknownRequest) (*models.MessageResponse, error) {
		data, p, err := s.unknownImage(ctx, input.ID)
		if err != nil {
			return nil, s.mapError(err)
		}
		if err := s.app.Faces().Add(input.Body.Name, data); err != nil {
			return nil, s.mapError(err)
		}
		if err := s.app.DB().UpsertFace(ctx, input.Body.Name, input.Body.Category); err != nil {
			return nil, s.mapError(err)
		}
		if err := s.app.DB().RecordSighting(ctx, input.Body.Name, p.Timestamp); err != nil {
			s.logger.Warn("Failed to record sighting", "name", input.Body.Name, "error", err)
		}
		if err := s.app.DB().DeleteUnknownPerson(ctx, input.ID); err != nil {
			return nil, s.mapError(err)
		}
		s.logger.Info("Unknown person labeled", "id", input.ID, "name", input.Body.Name)
		return &models.MessageResponse{Body: models.MessageData{Message: "labeled as " + input.Body.Name}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-unknown-person",
		Method:        http.MethodDelete,
		Path:          "/api/unknown/{id}",
		Summary:       "Dismiss Unknown Person",
		Tags:          []string{"faces"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.UnknownIDInput) (*struct{}, error) {
		if err := s.app.DB().DeleteUnknownPerson(ctx, input.ID); err != nil {
			return nil, s.mapError(err)
		}
		return nil, nil
	})
}

// listFaces merges reference images on disk with sighting records. A
// person may have either or both.
func (s *Server) listFaces(ctx context.Context) ([]models.FaceData, error) {
	names, err := s.app.Faces().Names()
	if err != nil {
		return nil, err
	}
	records, err := s.app.DB().ListFaces(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*models.FaceData, len(names)+len(records))
	for _, n := range names {
		byName[n] = &models.FaceData{Name: n, HasReference: true}
	}
	for _, r := range records {
		f, ok := byName[r.Name]
		if !ok {
			f = &models.FaceData{Name: r.Name}
			byName[r.Name] = f
		}
		f.Category = r.Category
		f.SightingCount = r.SightingCount
		if !r.LastSeen.IsZero() {
			f.LastSeen = r.LastSeen.Format(time.RFC3339)
		}
	}

	faces := make([]models.FaceData, 0, len(byName))
	for _, f := range byName {
		faces = append(faces, *f)
	}
	slices.SortFunc(faces, func(a, b models.FaceData) int { return strings.Compare(a.Name, b.Name) })
	return faces, nil
}

func (s *Server) unknownImage(ctx context.Context, id string) ([]byte, storage.UnknownPerson, error) {
	p, err := s.app.DB().GetUnknownPerson(ctx, id)
	if err != nil {
		return nil, p, err
	}
	data, err := s.app.Snapshots().Load(ctx, p.ImageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, p, huma.Error404NotFound("image of unknown person " + id + " is gone")
	}
	return data, p, err
}
