package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Frame Difference Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { margin: 0; font-family: sans-serif; background: #111; color: #eee; }
        .app { max-width: 960px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; }
        .badge { padding: 4px 10px; border-radius: 10px; background: #333; font-size: 13px; }
        .badge.live { background: #1b6e2a; }
        #view { width: 100%; background: #000; margin-top: 12px; image-rendering: pixelated; }
        .controls { display: flex; gap: 8px; margin-top: 12px; flex-wrap: wrap; }
        button { background: #2a2a2a; color: #eee; border: 1px solid #444; padding: 6px 14px; border-radius: 6px; cursor: pointer; }
        button.active { background: #3467c4; border-color: #3467c4; }
        table { margin-top: 16px; border-collapse: collapse; font-size: 13px; }
        td { padding: 2px 12px 2px 0; }
        td:first-child { color: #999; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <h2>Frame Difference Monitor</h2>
            <span class="badge" id="status-badge">Waiting for data...</span>
        </div>

        <img id="view" src="/stream" alt="frame difference stream">

        <div class="controls">
            <span>Rotation:</span>
            <button type="button" data-deg="0">0°</button>
            <button type="button" data-deg="90">90°</button>
            <button type="button" data-deg="180">180°</button>
            <button type="button" data-deg="270">270°</button>
            <span style="flex:1"></span>
            <button type="button" id="btn-record">Start recording</button>
            <a href="/snapshot.jpg" target="_blank"><button type="button">Snapshot</button></a>
        </div>

        <table id="stats"></table>
    </div>

    <script>
    const badge = document.getElementById('status-badge');
    const stats = document.getElementById('stats');
    const recordBtn = document.getElementById('btn-record');
    let recording = false;

    function markRotation(deg) {
        document.querySelectorAll('button[data-deg]').forEach(b => {
            b.classList.toggle('active', Number(b.dataset.deg) === deg);
        });
    }

    document.querySelectorAll('button[data-deg]').forEach(b => {
        b.addEventListener('click', async () => {
            const res = await fetch('/api/rotation', {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify({degrees: Number(b.dataset.deg)}),
            });
            if (res.ok) markRotation((await res.json()).degrees);
        });
    });

    recordBtn.addEventListener('click', async () => {
        const res = await fetch(recording ? '/api/recording/stop' : '/api/recording/start', {method: 'POST'});
        if (res.ok) {
            recording = !recording;
            recordBtn.textContent = recording ? 'Stop recording' : 'Start recording';
        }
    });

    function row(k, v) { return '<tr><td>' + k + '</td><td>' + v + '</td></tr>'; }

    function render(s) {
        const surf = s.surface || {};
        const pipe = s.pipeline || {};
        badge.textContent = surf.has_frame ? surf.current_fps.toFixed(1) + ' fps' : 'No frames';
        badge.classList.toggle('live', !!surf.has_frame);
        markRotation(s.rotation);
        recording = !!(s.recording && s.recording.recording);
        recordBtn.textContent = recording ? 'Stop recording' : 'Start recording';
        stats.innerHTML =
            row('Frame', surf.frame_number + ' (' + surf.width + 'x' + surf.height + ')') +
            row('Processed / dropped', pipe.frames_processed + ' / ' + pipe.frames_dropped) +
            row('Display posted / dropped', pipe.display_posted + ' / ' + pipe.display_dropped) +
            row('Process latency', pipe.process_latency_us + ' µs') +
            row('Capture to display', pipe.frame_latency_ms + ' ms') +
            row('Stream clients', s.stream_clients) +
            row('Recorded frames', s.recording ? s.recording.frame_count : 0);
    }

    const events = new EventSource('/api/status/stream');
    events.onmessage = e => render(JSON.parse(e.data));
    events.onerror = () => { badge.textContent = 'Disconnected'; badge.classList.remove('live'); };
    </script>
</body>
</html>
`
