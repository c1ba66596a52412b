package storagesource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarysync/internal/entities"
)

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Credentials
	}{
		{
			name: "filesystem handle",
			data: `{"fsPath":"/home/reader/books"}`,
			want: FilesystemHandle{FsPath: "/home/reader/books"},
		},
		{
			name: "remote oauth context",
			data: `{"clientId":"id","clientSecret":"secret","refreshToken":"rt"}`,
			want: RemoteOAuthContext{ClientID: "id", ClientSecret: "secret", RefreshToken: "rt"},
		},
		{
			name: "webdav context",
			data: `{"url":"https://dav.example.com","username":"u","password":"p"}`,
			want: WebDavContext{URL: "https://dav.example.com", Username: "u", Password: "p"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCredentials([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCredentials_Invalid(t *testing.T) {
	for _, data := range []string{`not json`, `{"user":"x"}`, `[]`, `{"url":42}`} {
		_, err := ParseCredentials([]byte(data))
		assert.ErrorIs(t, err, ErrConfiguration, data)
	}
}

func TestTypeGuards(t *testing.T) {
	fs := FilesystemHandle{FsPath: "/tmp"}
	remote := RemoteOAuthContext{ClientID: "id"}
	dav := WebDavContext{URL: "https://dav"}

	assert.True(t, IsFsHandle(fs))
	assert.False(t, IsFsHandle(dav))
	assert.True(t, IsRemoteContext(remote))
	assert.False(t, IsRemoteContext(fs))
	assert.True(t, IsWebDavContext(dav))
	assert.False(t, IsWebDavContext(remote))
}

func TestSupports(t *testing.T) {
	assert.True(t, Supports(WebDavContext{}, entities.StorageKindWebDAV))
	assert.False(t, Supports(WebDavContext{}, entities.StorageKindGoogleDrive))
	assert.True(t, Supports(RemoteOAuthContext{}, entities.StorageKindOneDrive))
	assert.True(t, Supports(FilesystemHandle{}, entities.StorageKindFilesystem))
	assert.False(t, Supports(nil, entities.StorageKindFilesystem))
}

func TestMarshalCredentials_RoundTrip(t *testing.T) {
	original := WebDavContext{URL: "https://dav", Username: "u", Password: "p"}

	data, err := MarshalCredentials(original)
	require.NoError(t, err)

	parsed, err := ParseCredentials(data)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}
