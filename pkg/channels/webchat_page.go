package channels

import (
	"html"

	"github.com/sipeed/billabee/pkg/conversation"
)

func webChatLoginPage(errMsg string) string {
	errBlock := ""
	if errMsg != "" {
		errBlock = `<div class="login-error">` + html.EscapeString(errMsg) + `</div>`
	}
	return `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>BillaBee - Login</title>
<style>
body{font-family:system-ui,sans-serif;display:flex;align-items:center;justify-content:center;height:100vh;margin:0}
.login-card{width:320px}
.login-error{color:#b91c1c;margin-bottom:12px}
.field{margin-bottom:12px}
.field input{width:100%;padding:8px}
</style>
</head>
<body>
<form class="login-card" method="post" action="/login">
<h1>BillaBee</h1>
` + errBlock + `
<div class="field"><label for="username">Username</label><input id="username" name="username" autocomplete="username" required></div>
<div class="field"><label for="password">Password</label><input id="password" name="password" type="password" autocomplete="current-password" required></div>
<button type="submit">Sign in</button>
</form>
</body>
</html>`
}

const webChatHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>BillaBee</title>
<style>
body{font-family:system-ui,sans-serif;margin:0 auto;max-width:720px;padding:16px}
#chat-container{display:none}
.message{margin:8px 0;padding:8px 12px;border-radius:10px}
.user-message{background:#fde68a;margin-left:20%}
.bot-message{background:#f3f4f6;margin-right:20%}
.timestamp{display:block;font-size:11px;color:#6b7280}
.event-card{border:1px solid #f59e0b;border-radius:8px;padding:8px;margin:6px 0}
.event-warning{color:#c2410c;font-size:12px}
#typing-indicator{font-style:italic;color:#6b7280}
button:disabled{opacity:.5}
</style>
</head>
<body>
<section id="welcome-section">
  <h1>Hi, I'm Billa the Bee</h1>
  <form id="search-form"><input id="search" placeholder="lunch with Sam tomorrow" autofocus><button id="search-send">Buzz!</button></form>
  <p><input id="user-id" placeholder="calendar user"><button id="user-set">Use</button></p>
</section>
<section id="chat-container">
  <button id="home-button">Home</button>
  <div id="chat-box"></div>
  <div id="events-container"></div>
  <form id="chat-form"><textarea id="chat-input" rows="1"></textarea><button id="chat-send">Buzz!</button></form>
</section>
<script>
const $ = id => document.getElementById(id);
const APOLOGY = "` + conversation.ApologyText + `";
const TYPING = "` + conversation.TypingText + `";
let busy = false;

function setBusy(on) {
  busy = on;
  ['chat-send', 'search-send', 'confirm-button'].forEach(id => { const b = $(id); if (b) b.disabled = on; });
}

function clock() {
  const d = new Date();
  return String(d.getHours()).padStart(2, '0') + ':' + String(d.getMinutes()).padStart(2, '0');
}

function showTyping(text) {
  hideTyping();
  const t = document.createElement('div');
  t.id = 'typing-indicator';
  t.textContent = text;
  $('chat-box').appendChild(t);
}

function hideTyping() { const t = $('typing-indicator'); if (t) t.remove(); }

// post sends one intent. Controls stay disabled until the reply arrives;
// text, when given, is shown as the user's bubble right away.
async function post(path, body, text) {
  if (busy) return;
  setBusy(true);
  let pending = null;
  if (text) {
    pending = addMessage({sender: 'user', html: '', time: clock()}, text);
    showTyping(TYPING);
  }
  let data = null;
  try {
    const res = await fetch(path, {method:'POST', headers:{'Content-Type':'application/json'}, body: JSON.stringify(body || {})});
    if (res.status === 401) { location.href = '/login'; return; }
    try { data = await res.json(); } catch (e) { data = null; }
    if (!data || (!res.ok && res.status !== 409 && res.status !== 422)) {
      throw new Error('relay answered ' + res.status);
    }
  } catch (e) {
    console.error(e);
    hideTyping();
    addMessage({sender: 'bot', html: '', time: clock()}, APOLOGY);
    return;
  } finally {
    setBusy(false);
  }
  if (pending) pending.remove();
  hideTyping();
  (data.frames || []).forEach(apply);
}

function addMessage(m, text) {
  const div = document.createElement('div');
  div.className = 'message ' + (m.sender === 'user' ? 'user-message' : 'bot-message');
  if (text) div.textContent = text; else div.innerHTML = m.html;
  const ts = document.createElement('span');
  ts.className = 'timestamp';
  ts.textContent = m.time;
  div.appendChild(ts);
  $('chat-box').appendChild(div);
  $('chat-box').scrollTop = $('chat-box').scrollHeight;
  return div;
}

function renderPanel(p) {
  const box = $('events-container');
  box.innerHTML = '';
  (p.cards || []).forEach(c => {
    const card = document.createElement('div');
    card.className = 'event-card';
    const cb = document.createElement('input');
    cb.type = 'checkbox';
    cb.checked = c.selected;
    cb.onchange = () => post('/chat/toggle', {index: c.index});
    const label = document.createElement('label');
    label.textContent = c.summary + ': ' + c.start + ' to ' + c.end + (c.recurrence ? ' (' + c.recurrence + ')' : '');
    const sel = document.createElement('select');
    (p.themes || []).forEach(t => {
      const o = document.createElement('option');
      o.value = o.textContent = t;
      o.selected = t === c.theme;
      sel.appendChild(o);
    });
    sel.onchange = () => post('/chat/theme', {index: c.index, theme: sel.value});
    card.append(cb, label, sel);
    if (c.warning) {
      const w = document.createElement('div');
      w.className = 'event-warning';
      w.textContent = c.warning;
      card.appendChild(w);
    }
    box.appendChild(card);
  });
  if (p.confirm) {
    const btn = document.createElement('button');
    btn.id = 'confirm-button';
    btn.textContent = 'Confirm Events';
    btn.disabled = busy;
    btn.onclick = () => { btn.disabled = true; post('/chat/confirm'); };
    box.appendChild(btn);
  }
}

function apply(f) {
  switch (f.type) {
  case 'message': addMessage(f.message); break;
  case 'typing': showTyping(f.text); break;
  case 'typing_done': hideTyping(); break;
  case 'candidates': renderPanel(f.panel); break;
  case 'confirm_enabled': { const b = $('confirm-button'); if (b) b.disabled = !f.enabled; break; }
  case 'alert': alert(f.text); break;
  case 'show_conversation': $('welcome-section').style.display = 'none'; $('chat-container').style.display = 'block'; break;
  case 'show_entry': $('chat-container').style.display = 'none'; $('welcome-section').style.display = 'block'; break;
  case 'focus_entry': $('search').focus(); break;
  }
}

$('search-form').onsubmit = e => {
  e.preventDefault();
  const text = $('search').value.trim();
  if (!text || busy) return;
  $('search').value = '';
  apply({type: 'show_conversation'});
  post('/chat/start', {message: text}, text);
};

$('chat-form').onsubmit = e => {
  e.preventDefault();
  const text = $('chat-input').value.trim();
  if (!text || busy) return;
  $('chat-input').value = '';
  post('/chat/send', {message: text}, text);
};

$('chat-input').addEventListener('input', e => {
  e.target.style.height = 'auto';
  e.target.style.height = e.target.scrollHeight + 'px';
});

$('chat-input').addEventListener('keydown', e => {
  if (e.key === 'Enter' && !e.shiftKey) { e.preventDefault(); $('chat-form').requestSubmit(); }
});

$('home-button').onclick = () => post('/chat/home');
$('user-set').onclick = () => { const u = $('user-id').value.trim(); if (u) post('/chat/user', {user: u}); };

fetch('/chat/poll').then(r => r.json()).then(d => {
  if (!d.messages || d.messages.length === 0) return;
  apply({type: 'show_conversation'});
  d.messages.forEach(addMessage);
  renderPanel(d.panel || {});
}).catch(e => console.error(e));
</script>
</body>
</html>`
