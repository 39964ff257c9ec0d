package registry

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type fakeObject struct {
	body     []byte
	metadata map[string]string
}

// fakeS3 is an in-memory bucket that honours IfNoneMatch on PutObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	puts    []string
	optFns  int

	// denyCode, when set, is returned by every call.
	denyCode string
	// headHidesManifest makes HeadObject report NotFound even when the
	// object exists, simulating a concurrent publisher.
	headHidesManifest bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]fakeObject{}}
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optFns += len(optFns)
	if f.denyCode != "" {
		return nil, &smithy.GenericAPIError{Code: f.denyCode}
	}
	if _, ok := f.objects[*in.Key]; !ok || f.headHidesManifest {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyCode != "" {
		return nil, &smithy.GenericAPIError{Code: f.denyCode}
	}
	obj, ok := f.objects[*in.Key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyCode != "" {
		return nil, &smithy.GenericAPIError{Code: f.denyCode}
	}
	if in.IfNoneMatch != nil && *in.IfNoneMatch == "*" {
		if _, ok := f.objects[*in.Key]; ok {
			return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
		}
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = fakeObject{body: body, metadata: in.Metadata}
	f.puts = append(f.puts, *in.Key)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) object(key string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[key]
	return o, ok
}
