package render

import "testing"

func TestResolveTargetURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain url unchanged",
			in:   "https://cdn.example.com/photo.jpg",
			want: "https://cdn.example.com/photo.jpg",
		},
		{
			name: "proxy with url param",
			in:   "https://app.example.com/image-proxy?url=https%3A%2F%2Fcdn.example.com%2Fphoto.jpg",
			want: "https://cdn.example.com/photo.jpg",
		},
		{
			name: "proxy with src param",
			in:   "https://app.example.com/proxy?src=https%3A%2F%2Fcdn.example.com%2Fa.png",
			want: "https://cdn.example.com/a.png",
		},
		{
			name: "nested proxy",
			in:   "https://a.example.com/proxy?url=https%3A%2F%2Fb.example.com%2Fimg-proxy%3Furl%3Dhttps%253A%252F%252Fcdn.example.com%252Freal.jpg",
			want: "https://cdn.example.com/real.jpg",
		},
		{
			name: "proxy path without target param",
			in:   "https://app.example.com/proxy?width=200",
			want: "https://app.example.com/proxy?width=200",
		},
		{
			name: "param priority url over src",
			in:   "https://app.example.com/proxy?src=https%3A%2F%2Fwrong.example.com%2Fx.jpg&url=https%3A%2F%2Fright.example.com%2Fy.jpg",
			want: "https://right.example.com/y.jpg",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
		{
			name: "whitespace trimmed",
			in:   "  https://cdn.example.com/p.jpg  ",
			want: "https://cdn.example.com/p.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveTargetURL(tt.in); got != tt.want {
				t.Errorf("ResolveTargetURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
