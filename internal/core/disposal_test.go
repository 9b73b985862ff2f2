package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"mycocore/internal/blob"
	"mycocore/pkg/domain"
)

func TestAttachEvidenceKeysByGroupAndVersion(t *testing.T) {
	store := blob.NewMemory()
	svc := newTestService(WithEvidenceStore(store))
	created := mustCreateCulture(t, svc, domain.CultureFields{Label: "GL-01", HealthRating: 4})

	info, err := svc.AttachEvidence(context.Background(), created.GroupID, "plate.jpg",
		strings.NewReader("jpeg-bytes"), blob.PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	wantKey := "evidence/" + created.GroupID + "/001/plate.jpg"
	if info.Key != wantKey {
		t.Fatalf("expected key %q, got %q", wantKey, info.Key)
	}
	if info.Metadata["record_group_id"] != created.GroupID || info.Metadata["version_id"] != created.ID {
		t.Fatalf("evidence must be tagged with its chain position, got %v", info.Metadata)
	}

	// Same name against the same version is write-once.
	if _, err := svc.AttachEvidence(context.Background(), created.GroupID, "plate.jpg",
		strings.NewReader("other"), blob.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate evidence upload to fail")
	}

	infos, err := svc.ListEvidence(context.Background(), created.GroupID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != wantKey {
		t.Fatalf("unexpected listing: %+v", infos)
	}

	gotInfo, rc, err := svc.OpenEvidence(context.Background(), wantKey)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	if string(data) != "jpeg-bytes" || gotInfo.ContentType != "image/jpeg" {
		t.Fatalf("unexpected content: %q %+v", data, gotInfo)
	}
}

func TestEvidenceWithoutStoreIsUnsupported(t *testing.T) {
	svc := newTestService()
	if _, err := svc.AttachEvidence(context.Background(), "grp", "f", strings.NewReader(""), blob.PutOptions{}); !errors.Is(err, blob.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := svc.ListEvidence(context.Background(), "grp"); !errors.Is(err, blob.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, _, err := svc.OpenEvidence(context.Background(), "key"); !errors.Is(err, blob.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestAttachEvidenceUnknownGroup(t *testing.T) {
	svc := newTestService(WithEvidenceStore(blob.NewMemory()))
	if _, err := svc.AttachEvidence(context.Background(), "missing", "f", strings.NewReader(""), blob.PutOptions{}); !errors.Is(err, domain.ErrRecordGroupNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
